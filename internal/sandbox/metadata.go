package sandbox

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"coderunner/internal/model"
)

type parsedMetadata struct {
	memory     *model.Kilobytes
	exitCode   *int
	exitSignal *int
	message    *string
	status     *string
	cpuTime    *model.Seconds
	wallTime   *model.Seconds
}

// splitMetadataLine splits a "key:value" line on the last colon. A
// value that itself contains a colon moves the split point into the
// value, so the resulting key is not a recognised one and
// parseMetadataFile ignores the line.
func splitMetadataLine(line string) (key, value string, ok bool) {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

func parseMetadataFile(path string) (*parsedMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	meta := &parsedMetadata{}
	content := strings.TrimSuffix(string(data), "\n")
	for _, line := range strings.Split(content, "\n") {
		if line == "" {
			continue
		}
		key, value, ok := splitMetadataLine(line)
		if !ok {
			return nil, fmt.Errorf("failed to parse metadata line: %q", line)
		}
		switch key {
		case "cg-mem":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("failed to parse memory usage %q: %w", value, err)
			}
			mem := model.Kilobytes(v)
			meta.memory = &mem
		case "exitcode":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse exit code %q: %w", value, err)
			}
			meta.exitCode = &v
		case "exitsig":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse exit signal %q: %w", value, err)
			}
			meta.exitSignal = &v
		case "message":
			v := value
			meta.message = &v
		case "status":
			v := value
			meta.status = &v
		case "time":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse cpu time %q: %w", value, err)
			}
			t := model.Seconds(v)
			meta.cpuTime = &t
		case "time-wall":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse wall time %q: %w", value, err)
			}
			t := model.Seconds(v)
			meta.wallTime = &t
		default:
			// unrecognised keys are ignored
		}
	}
	return meta, nil
}
