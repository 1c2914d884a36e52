// arclient is a terminal client for audio output routing. It drives either
// the local platform audio backend or a remote arserver daemon (-server),
// offering one-shot commands, a live watch UI and a control server
// passthrough.
//
// Usage:
//
//	arclient [flags] [command]
//
// Commands:
//
//	devices  list the available output devices
//	current  show the active output device
//	set <id> switch to the device with the given id
//	toggle   toggle between the built-in speaker and receiver
//	route    smart route change (toggle or picker)
//	picker   show the device picker
//	watch    live status UI (the default)
//	serve    expose the local backend over the control protocol
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/companyzero/audioroute/client"
	"github.com/companyzero/audioroute/internal/namestore"
	"github.com/companyzero/audioroute/lockfile"
	"github.com/companyzero/audioroute/native"
	"github.com/companyzero/audioroute/picker"
	"github.com/companyzero/audioroute/route"
	"github.com/companyzero/audioroute/routerpc"
	"golang.org/x/sync/errgroup"
)

// isDoneErr returns whether err only signals an orderly shutdown.
func isDoneErr(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// deviceLine formats one device for terminal output.
func deviceLine(names map[route.DeviceType]string, d route.Device, activeID string) string {
	name := names[d.Type]
	if name == "" {
		name = d.Type.DisplayName()
	}
	marker := " "
	if d.ID == activeID {
		marker = "*"
	}
	return fmt.Sprintf("%s %-14s %s", marker, name, d.ID)
}

// waitRemote blocks until the remote control connection answers, so that
// one-shot commands do not race the dial.
func waitRemote(ctx context.Context, remote *routerpc.Client) error {
	for {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := remote.RouteState(reqCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, routerpc.ErrClientNotRunning) {
			return err
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func realMain() error {
	cfg, cmdArgs, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logBknd, err := newLogBackend(cfg.LogFile, cfg.DebugLevel, cfg.MaxLogFiles)
	if err != nil {
		return err
	}
	defer logBknd.close()
	log := logBknd.logger("ARCL")
	log.Infof("arclient %s starting", version())

	cmdName := "watch"
	if len(cmdArgs) > 0 {
		cmdName = cmdArgs[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Build the backend: the local platform audio subsystem, or a remote
	// daemon when -server was given.
	var backend native.Backend
	var remote *routerpc.Client
	if cfg.ServerURL != "" {
		remote = routerpc.NewClient(cfg.ServerURL,
			routerpc.WithClientLog(logBknd.logger("RPCC")))
		backend = remote
	} else {
		backend, err = native.NewBackend(
			native.WithLog(logBknd.logger("NTVE")),
			native.WithPollInterval(cfg.PollInterval),
			native.WithVerifyDelay(cfg.VerifyDelay),
			native.WithChime(cfg.Chime),
		)
		if err != nil {
			return fmt.Errorf("unable to initialize audio backend: %w", err)
		}
	}
	defer backend.Close()

	names := namestore.New(cfg.NamesFile, logBknd.logger("NAME"))

	// Wrap the terminal picker so every dialog sees the current display
	// name overrides.
	pickerFunc := func(ctx context.Context, opts client.PickerOpts) (route.Device, bool, error) {
		if opts.DisplayNames == nil {
			opts.DisplayNames = names.Names()
		}
		return picker.Run(ctx, opts)
	}

	c, err := client.New(client.Config{
		Backend:     backend,
		Picker:      pickerFunc,
		PickerTitle: cfg.PickerTitle,
		Filter:      cfg.Filter,
		Logger:      logBknd.logger,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error { return names.Run(gctx) })

	if remote != nil {
		if err := waitRemote(gctx, remote); err != nil {
			cancel()
			g.Wait()
			return fmt.Errorf("unable to reach control server: %w", err)
		}
	}

	cmdErr := runCommand(gctx, cmdName, cmdArgs, cfg, c, names, logBknd, g)

	cancel()
	if err := g.Wait(); !isDoneErr(err) && cmdErr == nil {
		cmdErr = err
	}
	return cmdErr
}

// runCommand executes the selected subcommand over the running controller.
func runCommand(ctx context.Context, cmdName string, cmdArgs []string,
	cfg *config, c *client.Client, names *namestore.Store,
	logBknd *logBackend, g *errgroup.Group) error {

	switch cmdName {
	case "devices":
		devs := c.AvailableDevices(ctx)
		if len(devs) == 0 {
			fmt.Println("no output devices available")
			return nil
		}
		var activeID string
		if cur := c.CurrentDevice(ctx); cur != nil {
			activeID = cur.ID
		}
		nm := names.Names()
		for _, d := range devs {
			fmt.Println(deviceLine(nm, d, activeID))
		}
		return nil

	case "current":
		cur := c.CurrentDevice(ctx)
		if cur == nil {
			fmt.Println("current output device is undetermined")
			return nil
		}
		fmt.Println(deviceLine(names.Names(), *cur, cur.ID))
		return nil

	case "set":
		if len(cmdArgs) < 2 {
			return errors.New("set requires a device id")
		}
		c.SetAudioDevice(ctx, cmdArgs[1])
		return nil

	case "toggle":
		c.ToggleSpeakerReceiver(ctx)
		return nil

	case "route":
		return c.ChangeRoute(ctx)

	case "picker":
		return c.ShowRoutePicker(ctx)

	case "watch":
		return runWatchUI(ctx, c, names, logBknd)

	case "serve":
		// Hold the app lock so two serving instances do not fight over
		// the audio backend.
		lfPath := filepath.Join(cfg.Root, lockfile.DefaultName)
		lfCtx, lfCancel := context.WithTimeout(ctx, time.Second)
		lf, err := lockfile.Create(lfCtx, lfPath)
		lfCancel()
		if err != nil {
			return fmt.Errorf("unable to acquire %s: %w", lfPath, err)
		}
		defer lf.Close()

		srv := routerpc.NewServer(c,
			routerpc.WithListenAddr(cfg.RPCListen),
			routerpc.WithServerLog(logBknd.logger("RPCS")))
		g.Go(func() error { return srv.Run(ctx) })
		<-ctx.Done()
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmdName)
	}
}

func main() {
	err := realMain()
	if errors.Is(err, errCmdDone) || isDoneErr(err) {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
