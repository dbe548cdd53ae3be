// Package limits implements the limit-negotiation algorithm: a
// submission may request tighter limits than the operator ceiling, but
// never looser ones.
package limits

import (
	"fmt"

	"coderunner/internal/model"
)

// InvalidLimitError is returned when a requested field exceeds the
// operator ceiling for that field.
type InvalidLimitError struct {
	Field   string
	Ceiling any
}

func (e *InvalidLimitError) Error() string {
	return fmt.Sprintf("%s can't exceed %v", e.Field, e.Ceiling)
}

// Negotiate validates requested limits against the operator ceiling
// and fills in any field the request left unset. It never clamps: a
// requested field that exceeds the ceiling is a hard error.
func Negotiate(requested *model.Limits, ceiling model.MandatoryLimits) (model.MandatoryLimits, error) {
	if requested == nil {
		return ceiling, nil
	}

	result := ceiling

	if requested.WallTime != nil {
		if *requested.WallTime > ceiling.WallTime {
			return model.MandatoryLimits{}, &InvalidLimitError{"wall_time", ceiling.WallTime}
		}
		result.WallTime = *requested.WallTime
	}
	if requested.CPUTime != nil {
		if *requested.CPUTime > ceiling.CPUTime {
			return model.MandatoryLimits{}, &InvalidLimitError{"cpu_time", ceiling.CPUTime}
		}
		result.CPUTime = *requested.CPUTime
	}
	if requested.Memory != nil {
		if *requested.Memory > ceiling.Memory {
			return model.MandatoryLimits{}, &InvalidLimitError{"memory", ceiling.Memory}
		}
		result.Memory = *requested.Memory
	}
	if requested.ExtraTime != nil {
		if *requested.ExtraTime > ceiling.ExtraTime {
			return model.MandatoryLimits{}, &InvalidLimitError{"extra_time", ceiling.ExtraTime}
		}
		result.ExtraTime = *requested.ExtraTime
	}
	if requested.MaxOpenFiles != nil {
		if *requested.MaxOpenFiles > ceiling.MaxOpenFiles {
			return model.MandatoryLimits{}, &InvalidLimitError{"max_open_files", ceiling.MaxOpenFiles}
		}
		result.MaxOpenFiles = *requested.MaxOpenFiles
	}
	if requested.MaxFileSize != nil {
		if *requested.MaxFileSize > ceiling.MaxFileSize {
			return model.MandatoryLimits{}, &InvalidLimitError{"max_file_size", ceiling.MaxFileSize}
		}
		result.MaxFileSize = *requested.MaxFileSize
	}
	if requested.MaxNumberOfProcesses != nil {
		if *requested.MaxNumberOfProcesses > ceiling.MaxNumberOfProcesses {
			return model.MandatoryLimits{}, &InvalidLimitError{"max_number_of_processes", ceiling.MaxNumberOfProcesses}
		}
		result.MaxNumberOfProcesses = *requested.MaxNumberOfProcesses
	}

	return result, nil
}
