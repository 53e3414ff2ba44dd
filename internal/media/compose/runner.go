package compose

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// commandContext is swapped in tests to observe invocations without
// requiring a real ffmpeg install.
var commandContext = exec.CommandContext

func runFFmpeg(ctx context.Context, binary string, args ...string) error {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := commandContext(ctx, binary, full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
