package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// loadEnvFile parses a dump of shell-style KEY=VALUE lines, where a
// value may continue across following lines that contain no '=', and
// sets them on cmd. Splitting occurs on the *last* '=' of a line that
// starts a new entry; any line without '=' is appended (with a
// leading newline) to the value currently being accumulated. Every
// 500 lines the loader yields the scheduler so a pathologically large
// env file cannot starve other goroutines.
func loadEnvFile(cmd *exec.Cmd, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read environment variables from %s: %w", path, err)
	}

	content := strings.TrimSuffix(string(data), "\n")

	var key, value string
	haveKey := false
	lineCount := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "=") {
			if haveKey {
				cmd.Env = append(cmd.Env, key+"="+value)
			}
			idx := strings.LastIndex(line, "=")
			key = line[:idx]
			value = line[idx+1:]
			haveKey = true
		} else {
			value += "\n" + line
		}

		lineCount++
		if lineCount%500 == 0 {
			runtime.Gosched()
		}
	}
	if haveKey {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	return nil
}
