//go:build !cgo || nonative

// This backend is only used in cgo-less and nonative builds.

package native

import (
	"context"
	"errors"

	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"
)

func init() {
	newPlatformBackend = newNullBackend
}

var errRoutingDisabledCompilation = errors.New("audio routing was disabled during compilation")

type nullBackend struct {
	log slog.Logger
}

func newNullBackend(cfg *config) (Backend, error) {
	return nullBackend{log: cfg.log}, nil
}

func (nullBackend) Devices(_ context.Context, _ route.FilterMode) ([]route.Device, error) {
	return nil, errRoutingDisabledCompilation
}

func (nullBackend) CurrentDevice(_ context.Context) (*route.Device, error) {
	return nil, nil
}

func (nullBackend) SetDevice(_ context.Context, _ string) error {
	return errRoutingDisabledCompilation
}

func (nullBackend) Toggle(_ context.Context) error {
	return errRoutingDisabledCompilation
}

func (nullBackend) HasNativePicker() bool { return false }

func (nullBackend) ShowNativePicker(_ context.Context) error {
	return ErrNoNativePicker
}

func (nullBackend) Events() <-chan route.State {
	// A nil channel never delivers, matching the never-completing event
	// stream contract.
	return nil
}

func (b nullBackend) Run(ctx context.Context) error {
	b.log.Infof("Audio routing disabled in this build")
	<-ctx.Done()
	return ctx.Err()
}

func (nullBackend) Close() error { return nil }
