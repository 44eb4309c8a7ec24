package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// SteadyObjectScript holds one centered, tracked object for a long stretch so
// a session confirms it under any test confirmation window.
const SteadyObjectScript = `
tick_ms = 20
frame_width = 1000
frame_height = 1000
loop = true

[[frames]]
repeat = 500

  [[frames.items]]
  tracking_id = 1
  box = [450.0, 450.0, 550.0, 550.0]
  category = "home_good"
  label = "Coffee mug"
`

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
