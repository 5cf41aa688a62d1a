package staged

import (
	"context"
	"log"
	"os/exec"
)

// CommandStep wraps an external command as a pipeline step. The command runs
// with the run directory appended as "--run-dir <dir>" and its exit code is
// the step's signal; a command that cannot be started reports ExitError.
func CommandStep(name, command string, args []string) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, runDir string) int {
			full := append(append([]string{}, args...), "--run-dir", runDir)
			cmd := exec.CommandContext(ctx, command, full...)
			cmd.Dir = runDir
			out, err := cmd.CombinedOutput()
			if len(out) > 0 {
				log.Printf("[INFO] %s output:\n%s", name, out)
			}
			if err == nil {
				return ExitOK
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode()
			}
			log.Printf("[ERROR] %s: start command: %v", name, err)
			return ExitError
		},
	}
}
