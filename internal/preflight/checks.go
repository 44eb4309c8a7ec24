package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reticle/internal/config"
	"reticle/internal/search"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableFile verifies that a regular file exists and is readable.
func CheckReadableFile(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckDevice verifies that the capture device is a character device the
// daemon can open for reading and writing.
func CheckDevice(device string) Result {
	const name = "Camera device"

	device = strings.TrimSpace(device)
	if device == "" {
		return Result{Name: name, Detail: "no device configured"}
	}
	info, err := os.Stat(device)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (not attached)", device)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", device, err)}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a character device)", device)}
	}
	if err := unix.Access(device, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v; is the user in the video group?)", device, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (accessible)", device)}
}

// CheckSearchEndpoint verifies that the lookup endpoint answers and accepts
// the configured key. Any response below 500 other than 401/403 counts as
// reachable, since the endpoint only serves POST lookups.
func CheckSearchEndpoint(ctx context.Context, endpoint, apiKey string) Result {
	const name = "Search endpoint"

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode >= 500:
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
}

// CheckRedis verifies the lookup cache is reachable.
func CheckRedis(ctx context.Context, cfg config.Cache) Result {
	const name = "Lookup cache"

	if !cfg.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rdb, err := search.NewRedisClient(checkCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.RedisAddr, err)}
	}
	_ = rdb.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (ping ok)", cfg.RedisAddr)}
}
