package serverdb

import (
	"fmt"
	"time"
)

// Favorite is a tip a user saved, joined with enough of the tip to list it.
type Favorite struct {
	TipID        string
	Title        string
	CategorySlug string
	CreatedAt    time.Time
}

// AddFavorite saves tipID for userID. It reports whether a new row was
// written; saving an existing favorite is a no-op. An unknown tip yields
// ErrNotFound.
func (db *ServerDB) AddFavorite(userID, tipID string) (bool, error) {
	t, err := db.GetTip(tipID)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, fmt.Errorf("tip %s: %w", tipID, ErrNotFound)
	}

	res, err := db.conn.Exec(
		`INSERT OR IGNORE INTO favorites (user_id, tip_id, created_at) VALUES (?, ?, ?)`,
		userID, tipID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("add favorite: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveFavorite deletes a favorite and reports whether one existed.
func (db *ServerDB) RemoveFavorite(userID, tipID string) (bool, error) {
	res, err := db.conn.Exec(`DELETE FROM favorites WHERE user_id = ? AND tip_id = ?`, userID, tipID)
	if err != nil {
		return false, fmt.Errorf("remove favorite: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListFavorites returns userID's favorites, oldest first.
func (db *ServerDB) ListFavorites(userID string) ([]Favorite, error) {
	rows, err := db.conn.Query(`
		SELECT f.tip_id, t.title, c.slug, f.created_at
		FROM favorites f
		JOIN tips t ON t.id = f.tip_id
		JOIN categories c ON c.id = t.category_id
		WHERE f.user_id = ?
		ORDER BY f.created_at, f.tip_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	favs := []Favorite{}
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.TipID, &f.Title, &f.CategorySlug, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favs = append(favs, f)
	}
	return favs, rows.Err()
}

// CountFavorites returns how many favorites userID has.
func (db *ServerDB) CountFavorites(userID string) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM favorites WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count favorites: %w", err)
	}
	return n, nil
}
