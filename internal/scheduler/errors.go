package scheduler

import "errors"

var (
	// ErrMissingShop is returned when a command omits the owning shop
	ErrMissingShop = errors.New("missing shop domain")

	// ErrMissingEmail is returned when a schedule has no recipient
	ErrMissingEmail = errors.New("missing recipient email")
)
