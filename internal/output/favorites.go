package output

import (
	"errors"
	"fmt"

	"github.com/marcus/tipbox/internal/favorites"
)

// FavoriteErrorMessage turns a favorites failure into a short message for
// the user.
func FavoriteErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	switch favorites.KindOf(err) {
	case favorites.KindLimitExceeded:
		limit := favorites.DefaultLimit
		var fe *favorites.Error
		if errors.As(err, &fe) && fe.Limit > 0 {
			limit = fe.Limit
		}
		return fmt.Sprintf("You can save up to %d favorites without an account. Run `tipbox auth login` to save more.", limit)
	case favorites.KindNetworkFailure:
		return "Could not reach the tipbox server. Your change was not saved."
	case favorites.KindAuthExpired:
		return "Your session has expired. Run `tipbox auth login` again."
	}
	if errors.Is(err, favorites.ErrEmptyID) {
		return "A tip ID is required."
	}
	return "Something went wrong saving your favorites: " + err.Error()
}

// FavoriteErrorCode maps a favorites failure to a JSON error code.
func FavoriteErrorCode(err error) string {
	switch favorites.KindOf(err) {
	case favorites.KindLimitExceeded:
		return ErrCodeLimitExceeded
	case favorites.KindNetworkFailure:
		return ErrCodeNetwork
	case favorites.KindAuthExpired:
		return ErrCodeAuthExpired
	}
	return ErrCodeUnknown
}
