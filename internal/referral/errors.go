package referral

import (
	"errors"
	"fmt"

	"github.com/aveksana/referrals-api/internal/user"
)

var (
	ErrMissingFields    = errors.New("missing fields")
	ErrStoreUnavailable = errors.New("store unavailable")
)

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingFields, field)
}

// storeError keeps not-found errors as they are and marks everything else as
// a store failure.
func storeError(op string, err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
