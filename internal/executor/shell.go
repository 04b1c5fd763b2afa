package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Shell runs the command string as an OS process and returns its combined
// output. The context is honored, so a deployment that wants hard
// cancellation can pass a deadline-bearing context.
type Shell struct{}

func (Shell) Execute(ctx context.Context, command string) (string, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return "", fmt.Errorf("split command: %w", err)
	}
	if len(words) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("shell error: %v; out=%s", err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}
