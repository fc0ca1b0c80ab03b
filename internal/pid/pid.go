package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
)

const filePerm = 0o600

// Write records the current process ID in path. It fails with
// errors.ErrAlreadyRunning if path names a live process. A stale or
// unreadable file is replaced.
func Write(path string) error {
	errFactory := errors.New()

	if path == "" {
		return errFactory.WithData(errors.ErrInvalidArgument, "pid file path")
	}

	if running, pid := isRunning(path); running {
		return errFactory.WithData(errors.ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), filePerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the PID file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func isRunning(path string) (bool, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 || pid == os.Getpid() {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	return process.Signal(syscall.Signal(0)) == nil, pid
}
