package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a log directory, the glob its daemon and replay logs
// follow, and paths that must survive pruning (the log currently open).
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes matching log files last written before the
// retention window. retentionDays <= 0 keeps everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) {
	if retentionDays <= 0 {
		return
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, target := range targets {
		for _, path := range target.expired(cutoff) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "could not prune old log", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check ownership of paths.log_dir"),
					String(FieldImpact, "old log stays on disk"),
				)
				continue
			}
			logger.Info("old log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
}

func (t RetentionTarget) expired(cutoff time.Time) []string {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	keep := make(map[string]bool, len(t.Exclude))
	for _, p := range t.Exclude {
		if p = strings.TrimSpace(p); p != "" {
			keep[absPath(p)] = true
		}
	}
	var out []string
	for _, match := range matches {
		path := absPath(match)
		if keep[path] {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, path)
	}
	return out
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
