package golib

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/companyzero/audioroute/client"
	"github.com/companyzero/audioroute/lockfile"
	"github.com/companyzero/audioroute/native"
	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"
)

type routerCtx struct {
	c      *client.Client
	ctx    context.Context
	cancel func()
	runMtx sync.Mutex
	runErr error
	log    slog.Logger

	// pickerChan is non-nil while a picker request is in flight with the
	// embedding UI and receives the UI's reply.
	pickerMtx  sync.Mutex
	pickerChan chan pickerResult
}

var (
	cmtx sync.Mutex
	cs   map[uint32]*routerCtx
	lfs  map[string]*lockfile.LockFile = map[string]*lockfile.LockFile{}
)

func handleInitRouter(handle uint32, args initRouter) error {
	cmtx.Lock()
	defer cmtx.Unlock()
	if cs == nil {
		cs = make(map[uint32]*routerCtx)
	}
	if cs[handle] != nil {
		return errors.New("router already initialized")
	}

	// Initialize logging.
	logBknd, err := newLogBackend(args.LogFile, args.DebugLevel)
	if err != nil {
		return err
	}
	logBknd.notify = args.WantsLogNtfns

	filter := route.FilterMode(args.Filter)
	if !filter.Valid() {
		return fmt.Errorf("invalid filter mode %d", args.Filter)
	}

	// Initialize the platform backend.
	opts := []native.Option{native.WithLog(logBknd.logger("NTVE"))}
	if args.PollIntervalMs > 0 {
		opts = append(opts, native.WithPollInterval(
			time.Duration(args.PollIntervalMs)*time.Millisecond))
	}
	if args.VerifyDelayMs > 0 {
		opts = append(opts, native.WithVerifyDelay(
			time.Duration(args.VerifyDelayMs)*time.Millisecond))
	}
	if args.Chime {
		opts = append(opts, native.WithChime(true))
	}
	backend, err := native.NewBackend(opts...)
	if err != nil {
		return fmt.Errorf("unable to initialize native backend: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rc := &routerCtx{
		ctx:    ctx,
		cancel: cancel,
		log:    logBknd.logger("GOLB"),
	}

	ntfns := client.NewNotificationManager()
	ntfns.Register(client.OnRouteChangedNtfn(func(st route.State) {
		notify(NTRouteStateChanged, st, nil)
	}))

	c, err := client.New(client.Config{
		Backend:       backend,
		Picker:        rc.uiPicker,
		PickerTitle:   args.PickerTitle,
		Filter:        filter,
		Notifications: ntfns,
		Logger:        logBknd.logger,
	})
	if err != nil {
		cancel()
		backend.Close()
		return err
	}
	rc.c = c
	cs[handle] = rc

	go func() {
		err := c.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		rc.runMtx.Lock()
		rc.runErr = err
		rc.runMtx.Unlock()
		if cerr := backend.Close(); cerr != nil {
			rc.log.Warnf("Unable to close backend: %v", cerr)
		}
		notify(NTRouterStopped, nil, err)
	}()

	return nil
}

// uiPicker implements client.PickerFunc by asking the embedding UI to show a
// selection dialog and blocking until it replies with a pickerResult
// command.
func (rc *routerCtx) uiPicker(ctx context.Context, opts client.PickerOpts) (route.Device, bool, error) {
	rc.pickerMtx.Lock()
	if rc.pickerChan != nil {
		rc.pickerMtx.Unlock()
		return route.Device{}, false, errors.New("picker already shown")
	}
	ch := make(chan pickerResult, 1)
	rc.pickerChan = ch
	rc.pickerMtx.Unlock()

	defer func() {
		rc.pickerMtx.Lock()
		rc.pickerChan = nil
		rc.pickerMtx.Unlock()
	}()

	notify(NTShowPicker, pickerRequest{
		Title:      opts.Title,
		Devices:    opts.Devices,
		SelectedID: opts.SelectedID,
	}, nil)

	select {
	case res := <-ch:
		if res.Dismissed {
			return route.Device{}, false, nil
		}
		for _, d := range opts.Devices {
			if d.ID == res.DeviceID {
				return d, true, nil
			}
		}
		return route.Device{}, false, fmt.Errorf("picked device %q "+
			"was not offered", res.DeviceID)
	case <-ctx.Done():
		return route.Device{}, false, ctx.Err()
	}
}

func handleCreateLockFile(rootDir string) error {
	filePath := filepath.Join(rootDir, lockfile.DefaultName)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	lf, err := lockfile.Create(ctx, filePath)
	cancel()
	if err != nil {
		return fmt.Errorf("unable to create lockfile %q: %v", filePath, err)
	}
	cmtx.Lock()
	lfs[filePath] = lf
	cmtx.Unlock()
	return nil
}

func handleCloseLockFile(rootDir string) error {
	filePath := filepath.Join(rootDir, lockfile.DefaultName)

	cmtx.Lock()
	lf := lfs[filePath]
	delete(lfs, filePath)
	cmtx.Unlock()

	if lf == nil {
		return fmt.Errorf("nil lockfile")
	}
	return lf.Close()
}

func handleRouterCmd(rc *routerCtx, cmd *cmd) (interface{}, error) {
	c := rc.c

	switch cmd.Type {
	case CTShowAudioRoutePicker:
		return nil, c.ShowRoutePicker(rc.ctx)

	case CTGetAvailableDevices:
		return c.AvailableDevices(rc.ctx), nil

	case CTSetAudioDevice:
		var args setAudioDeviceArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		c.SetAudioDevice(rc.ctx, args.DeviceID)
		return nil, nil

	case CTGetCurrentDevice:
		return c.CurrentDevice(rc.ctx), nil

	case CTHasExternalDevices:
		return c.HasExternalDevices(rc.ctx), nil

	case CTToggleSpeakerReceiver:
		c.ToggleSpeakerReceiver(rc.ctx)
		return nil, nil

	case CTChangeAudioRoute:
		return nil, c.ChangeRoute(rc.ctx)

	case CTGetRouteState:
		return c.LastState(), nil

	case CTPickerResult:
		var args pickerResult
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		rc.pickerMtx.Lock()
		ch := rc.pickerChan
		rc.pickerMtx.Unlock()
		if ch == nil {
			return nil, errors.New("no picker in flight")
		}
		select {
		case ch <- args:
		default:
		}
		return nil, nil

	case CTStopRouter:
		rc.cancel()
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown command type %s", cmd.Type)
	}
}
