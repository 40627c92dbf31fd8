package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Category groups tips.
type Category struct {
	ID       string
	Slug     string
	Name     string
	Position int
	TipCount int // filled by ListCategories
}

// Tip is one catalog entry.
type Tip struct {
	ID           string
	CategoryID   string
	CategorySlug string
	Title        string
	Body         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TipFilter narrows ListTips.
type TipFilter struct {
	CategorySlug string
	Limit        int
	Offset       int
}

const (
	DefaultTipPageSize = 50
	MaxTipPageSize     = 200
)

// SeedResult counts what SeedCatalog wrote.
type SeedResult struct {
	Categories int
	Tips       int
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertCategory(ex execer, c Category) error {
	if c.ID == "" || c.Slug == "" || c.Name == "" {
		return fmt.Errorf("category needs id, slug and name")
	}
	_, err := ex.Exec(
		`INSERT INTO categories (id, slug, name, position) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET slug = excluded.slug, name = excluded.name, position = excluded.position`,
		c.ID, c.Slug, c.Name, c.Position,
	)
	if err != nil {
		return fmt.Errorf("upsert category %s: %w", c.ID, err)
	}
	return nil
}

func upsertTip(ex execer, t Tip, now time.Time) error {
	if t.ID == "" || t.CategoryID == "" || t.Title == "" {
		return fmt.Errorf("tip needs id, category and title")
	}
	_, err := ex.Exec(
		`INSERT INTO tips (id, category_id, title, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET category_id = excluded.category_id, title = excluded.title,
		     body = excluded.body, updated_at = excluded.updated_at`,
		t.ID, t.CategoryID, t.Title, t.Body, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert tip %s: %w", t.ID, err)
	}
	return nil
}

// UpsertCategory inserts or updates a category by ID.
func (db *ServerDB) UpsertCategory(c Category) error {
	return upsertCategory(db.conn, c)
}

// UpsertTip inserts or updates a tip by ID. Its category must exist.
func (db *ServerDB) UpsertTip(t Tip) error {
	return upsertTip(db.conn, t, time.Now().UTC())
}

// SeedCatalog upserts categories then tips in one transaction. Existing
// rows not named in the seed are left alone so favorites stay valid.
func (db *ServerDB) SeedCatalog(categories []Category, tips []Tip) (SeedResult, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return SeedResult{}, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range categories {
		if err := upsertCategory(tx, c); err != nil {
			return SeedResult{}, err
		}
	}
	for _, t := range tips {
		if err := upsertTip(tx, t, now); err != nil {
			return SeedResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return SeedResult{}, fmt.Errorf("commit seed: %w", err)
	}
	return SeedResult{Categories: len(categories), Tips: len(tips)}, nil
}

// ListCategories returns every category in display order with tip counts.
func (db *ServerDB) ListCategories() ([]Category, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.slug, c.name, c.position, COUNT(t.id)
		FROM categories c
		LEFT JOIN tips t ON t.category_id = c.id
		GROUP BY c.id
		ORDER BY c.position, c.name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.Position, &c.TipCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// GetCategoryBySlug returns the category, or nil if not found.
func (db *ServerDB) GetCategoryBySlug(slug string) (*Category, error) {
	c := &Category{}
	err := db.conn.QueryRow(`SELECT id, slug, name, position FROM categories WHERE slug = ?`, slug).
		Scan(&c.ID, &c.Slug, &c.Name, &c.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

const tipSelect = `SELECT t.id, t.category_id, c.slug, t.title, t.body, t.created_at, t.updated_at
	FROM tips t JOIN categories c ON c.id = t.category_id`

func scanTip(row interface{ Scan(...any) error }) (*Tip, error) {
	t := &Tip{}
	if err := row.Scan(&t.ID, &t.CategoryID, &t.CategorySlug, &t.Title, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTips returns one page of tips ordered by category then title, plus
// the total number of tips matching the filter.
func (db *ServerDB) ListTips(f TipFilter) ([]Tip, int, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultTipPageSize
	}
	if f.Limit > MaxTipPageSize {
		f.Limit = MaxTipPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where := ""
	var args []any
	if f.CategorySlug != "" {
		where = " WHERE c.slug = ?"
		args = append(args, f.CategorySlug)
	}

	var total int
	if err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM tips t JOIN categories c ON c.id = t.category_id`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tips: %w", err)
	}

	rows, err := db.conn.Query(
		tipSelect+where+` ORDER BY c.position, t.title, t.id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list tips: %w", err)
	}
	defer rows.Close()

	var tips []Tip
	for rows.Next() {
		t, err := scanTip(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tip: %w", err)
		}
		tips = append(tips, *t)
	}
	return tips, total, rows.Err()
}

// GetTip returns the tip, or nil if not found.
func (db *ServerDB) GetTip(id string) (*Tip, error) {
	t, err := scanTip(db.conn.QueryRow(tipSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tip: %w", err)
	}
	return t, nil
}
