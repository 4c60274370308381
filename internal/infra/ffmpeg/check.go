package ffmpeg

import (
	"fmt"
	"os/exec"
)

// CheckBinaries verifies both external tools are installed. A worker that
// cannot encode must exit at startup instead of looping on unclaimable work.
func CheckBinaries() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}
