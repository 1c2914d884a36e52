// Package lockfile enforces single-instance operation. The platform audio
// subsystem tolerates only one routing controller per app root dir, so both
// the daemon and the serve command take an exclusive lock on a file inside
// the root before touching the backend.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rogpeppe/go-internal/lockedfile"
)

// DefaultName is the conventional lockfile name inside an app root dir.
const DefaultName = "audioroute.lock"

// LockFile is a held instance lock. It stays held until Close.
type LockFile struct {
	f *lockedfile.File
}

// Close releases the instance lock.
func (lf *LockFile) Close() error {
	if lf.f == nil {
		return fmt.Errorf("nil internal locked file")
	}
	return lf.f.Close()
}

// Create takes the exclusive instance lock backed by filePath, blocking while
// another process holds it or until ctx is done.
func Create(ctx context.Context, filePath string) (*LockFile, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o0700); err != nil {
		return nil, err
	}
	cf := make(chan *lockedfile.File)
	cerr := make(chan error)
	go func() {
		f, err := lockedfile.Create(filePath)
		if err != nil {
			cerr <- err
		} else {
			cf <- f
		}
	}()

	select {
	case f := <-cf:
		// Lock acquired. Record who holds it so a stuck "daemon
		// already running" report can be traced to a process. Write
		// errors are ignored as the contents are informational only.
		f.WriteString(fmt.Sprintf("PID=%d\n", os.Getpid()))
		host, _ := os.Hostname()
		f.WriteString(fmt.Sprintf("Host=%q\n", host))
		procName := ""
		if len(os.Args) > 0 {
			procName = os.Args[0]
		}
		f.WriteString(fmt.Sprintf("Process=%q\n", procName))
		return &LockFile{f: f}, nil

	case err := <-cerr:
		return nil, err

	case <-ctx.Done():
		// The lock may still be acquired after the ctx gives up, so
		// release it whenever the open call eventually returns.
		go func() {
			select {
			case <-cerr:
			case f := <-cf:
				f.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
