package disk

import (
	"context"
	"fmt"
	"os/exec"
)

// runTool invokes an external disk tool, folding its combined output into
// the error on failure.
func runTool(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", name, err, output)
	}
	return nil
}

// runToolOutput is runTool for commands whose stdout we need.
func runToolOutput(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return string(output), nil
}
