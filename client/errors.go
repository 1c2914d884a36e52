package client

import (
	"errors"
	"fmt"

	"github.com/companyzero/audioroute/route"
)

var (
	// ErrPickerUnavailable is returned when a route change requires user
	// selection but neither a native picker nor a custom picker func is
	// available.
	ErrPickerUnavailable = errors.New("no device picker available")

	// ErrBackendRequired is returned by New when the config has no
	// backend.
	ErrBackendRequired = errors.New("backend is required")
)

type invalidFilterError struct {
	mode route.FilterMode
}

func (err invalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter mode %d", int(err.mode))
}

func (err invalidFilterError) Is(target error) bool {
	_, ok := target.(invalidFilterError)
	return ok
}
