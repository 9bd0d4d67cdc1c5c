package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
	"sync"
)

var (
	versionOnce sync.Once
	version     string
)

// Version returns the first line of `ffmpeg -version`, memoised for the
// run. Cached sample results depend on it: a tool upgrade re-measures.
func Version(ctx context.Context) string {
	versionOnce.Do(func() {
		out, err := exec.CommandContext(ctx, "ffmpeg", "-version").Output()
		if err != nil {
			version = "unknown"
			return
		}
		if line, _, found := strings.Cut(string(out), "\n"); found {
			version = strings.TrimSpace(line)
		} else {
			version = strings.TrimSpace(string(out))
		}
	})
	return version
}
