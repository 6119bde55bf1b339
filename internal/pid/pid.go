// Package pid keeps a single ingesting process per device endpoint.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/sensorlog/internal/errors"
)

const prefix = "sensorlog"

// Lock is a held pid file.
type Lock struct {
	path string
}

// FileName returns the pid file name used for name, with path separators
// and other unsafe characters replaced.
func FileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteByte('_')
		}
	}

	safe := strings.TrimRight(b.String(), "_")
	if safe == "" {
		return prefix + ".pid"
	}
	return prefix + "-" + safe + ".pid"
}

// Acquire writes the current process ID to a pid file for name in dir. It
// fails with ErrAlreadyRunning while another live process holds it; a file
// left behind by a dead process is taken over. An empty dir means
// os.TempDir().
func Acquire(dir, name string) (*Lock, error) {
	errFactory := errors.New()

	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, FileName(name))

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, errFactory.Wrap(errors.ErrInternal, errors.Join(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, errFactory.Wrap(errors.ErrInternal, err)
		}

		running, err := holderRunning(path)
		if err != nil {
			return nil, err
		}
		if running {
			return nil, errFactory.WithData(errors.ErrAlreadyRunning, name)
		}

		// stale pid file
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, errFactory.Wrap(errors.ErrInternal, err)
		}
	}

	return nil, errFactory.WithData(errors.ErrResourceBusy, path)
}

func holderRunning(path string) (bool, error) {
	errFactory := errors.New()

	bytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errFactory.Wrap(errors.ErrInternal, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
	if err != nil || pid <= 0 {
		return false, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	return process.Signal(syscall.Signal(0)) == nil, nil
}

// Path returns the pid file location.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the pid file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
