// arserver is a headless audio routing daemon. It runs the platform audio
// backend, exposes it over the websocket control protocol and optionally
// serves Prometheus metrics. The last selected route is persisted and
// restored across restarts.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/companyzero/audioroute/client"
	"github.com/companyzero/audioroute/internal/namestore"
	"github.com/companyzero/audioroute/internal/prefs"
	"github.com/companyzero/audioroute/lockfile"
	"github.com/companyzero/audioroute/native"
	"github.com/companyzero/audioroute/route"
	"github.com/companyzero/audioroute/routerpc"
	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	appMajor = 0
	appMinor = 2
	appPatch = 0

	appPreRelease = "beta"
)

func version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		v += "-" + appPreRelease
	}
	return v
}

func realMain() error {
	s, err := obtainSettings()
	if err != nil {
		return err
	}

	filter, err := route.ParseFilterMode(s.Filter)
	if err != nil {
		return err
	}

	logBknd, err := newLogBackend(s.LogFile, s.DebugLevel)
	if err != nil {
		return err
	}
	defer logBknd.close()
	log := logBknd.logger("ARSV")
	log.Infof("arserver %s starting", version())

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Single instance per root dir.
	lfPath := filepath.Join(s.RootDir, lockfile.DefaultName)
	lfCtx, lfCancel := context.WithTimeout(ctx, time.Second)
	lf, err := lockfile.Create(lfCtx, lfPath)
	lfCancel()
	if err != nil {
		return fmt.Errorf("unable to acquire %s (daemon already running?): %w",
			lfPath, err)
	}
	defer lf.Close()

	backend, err := native.NewBackend(
		native.WithLog(logBknd.logger("NTVE")),
		native.WithPollInterval(s.PollInterval),
		native.WithVerifyDelay(s.VerifyDelay),
		native.WithChime(s.Chime),
	)
	if err != nil {
		return fmt.Errorf("unable to initialize audio backend: %w", err)
	}
	defer backend.Close()

	names := namestore.New(s.NamesFile, logBknd.logger("NAME"))

	c, err := client.New(client.Config{
		Backend:      backend,
		DisplayNames: names.Names(),
		Filter:       filter,
		Logger:       logBknd.logger,
	})
	if err != nil {
		return err
	}

	// Persist the selected route and restore the previous one on
	// startup.
	prefStore := prefs.NewStore(filepath.Join(s.RootDir, "prefs.json"),
		logBknd.logger("PREF"))
	c.Notifications().Register(client.OnSelectionChangedNtfn(
		func(_, newDev *route.Device) {
			if err := prefStore.SaveLastRoute(newDev, filter); err != nil {
				log.Warnf("Unable to persist route: %v", err)
			}
		}))

	srv := routerpc.NewServer(c,
		routerpc.WithListenAddr(s.Listen),
		routerpc.WithServerLog(logBknd.logger("RPCS")))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error { return names.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if s.ListenPrometheus != "" {
		promServer := &http.Server{
			Addr: s.ListenPrometheus,
			Handler: promhttp.HandlerFor(srv.Registry(),
				promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			log.Infof("Prometheus listener on %s", s.ListenPrometheus)
			err := promServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(
				context.Background(), time.Second)
			defer cancel()
			promServer.Shutdown(shutCtx)
			return gctx.Err()
		})
	}

	if s.RestoreRoute {
		g.Go(func() error {
			restoreLastRoute(gctx, c, prefStore, log)
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Infof("arserver shutting down")
	return err
}

// restoreLastRoute switches back to the persisted route once it shows up in
// the device list. Gives up quietly after a few scan intervals: the device
// may simply be gone.
func restoreLastRoute(ctx context.Context, c *client.Client,
	prefStore *prefs.Store, log slog.Logger) {

	p, err := prefStore.Load()
	if errors.Is(err, prefs.ErrNotFound) || p.LastDeviceID == "" {
		return
	} else if err != nil {
		log.Debugf("Unable to load prefs: %v", err)
		return
	}

	for attempt := 0; attempt < 5; attempt++ {
		devs := c.AvailableDevices(ctx)
		for _, d := range devs {
			if d.ID == p.LastDeviceID {
				log.Infof("Restoring previous route %q", d.ID)
				c.SetAudioDevice(ctx, d.ID)
				return
			}
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return
		}
	}
	log.Debugf("Previous route %q never showed up; not restoring",
		p.LastDeviceID)
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
