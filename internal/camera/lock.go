package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// DeviceLock holds exclusive use of a capture device for one session.
type DeviceLock struct {
	device string
	lock   *flock.Flock
}

// LockPath returns the lock file used for device under lockDir.
func LockPath(lockDir, device string) string {
	name := strings.Trim(strings.ReplaceAll(filepath.Clean(device), string(filepath.Separator), "-"), "-")
	if name == "" || name == "." {
		name = "camera"
	}
	return filepath.Join(lockDir, name+".lock")
}

// AcquireDeviceLock takes the session lock for device without blocking.
func AcquireDeviceLock(lockDir, device string) (*DeviceLock, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := LockPath(lockDir, device)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("camera %s is already in use by another session (%s)", device, path)
	}
	return &DeviceLock{device: device, lock: lock}, nil
}

// Device returns the locked device path.
func (l *DeviceLock) Device() string { return l.device }

// Path returns the lock file path.
func (l *DeviceLock) Path() string { return l.lock.Path() }

// Release unlocks the device. Safe to call on a nil lock and more than once.
func (l *DeviceLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if !l.lock.Locked() {
		return nil
	}
	return l.lock.Unlock()
}
