// Package model holds the wire and domain types shared across the
// registry, sandbox, and HTTP layers.
package model

// Seconds is a fractional-second duration as reported by the sandbox
// isolator's metadata file (cpu_time, wall_time).
type Seconds = float64

// Kilobytes is a memory or file-size quantity in KB.
type Kilobytes = uint32

// Runtime is the durable, immutable-after-install descriptor for one
// language environment.
type Runtime struct {
	ID             uint32 `json:"id"`
	Name           string `json:"name"`
	SourceFileName string `json:"source_file_name"`
	IsCompiled     bool   `json:"is_compiled"`
	ShellManifest  string `json:"-"`
}

// RuntimeSummary is the shape returned by GET /runtimes.
type RuntimeSummary struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// Limits is the request-shaped, fully-optional limit override.
type Limits struct {
	WallTime             *Seconds   `json:"wall_time,omitempty"`
	CPUTime              *Seconds   `json:"cpu_time,omitempty"`
	Memory               *Kilobytes `json:"memory,omitempty"`
	ExtraTime            *Seconds   `json:"extra_time,omitempty"`
	MaxOpenFiles         *uint32    `json:"max_open_files,omitempty"`
	MaxFileSize          *Kilobytes `json:"max_file_size,omitempty"`
	MaxNumberOfProcesses *uint32    `json:"max_number_of_processes,omitempty"`
}

// MandatoryLimits is a fully-resolved limit set, ready to hand to the
// sandbox isolator.
type MandatoryLimits struct {
	WallTime             Seconds
	CPUTime              Seconds
	Memory               Kilobytes
	ExtraTime            Seconds
	MaxOpenFiles         uint32
	MaxFileSize          Kilobytes
	MaxNumberOfProcesses uint32
}

// SystemLimits holds the operator-configured ceilings for each stage.
type SystemLimits struct {
	Compile MandatoryLimits
	Run     MandatoryLimits
}

// StageResult is the outcome of one sandboxed stage invocation. Every
// numeric field is optional because it is parsed from the isolator's
// metadata file, which may be partial on hard failures.
type StageResult struct {
	Memory      *Kilobytes `json:"memory,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	ExitSignal  *int       `json:"exit_signal,omitempty"`
	ExitMessage *string    `json:"exit_message,omitempty"`
	ExitStatus  *string    `json:"exit_status,omitempty"`
	Stdout      string     `json:"stdout"`
	Stderr      string     `json:"stderr"`
	CPUTime     *Seconds   `json:"cpu_time,omitempty"`
	WallTime    *Seconds   `json:"wall_time,omitempty"`
}

// AddRuntimeRequest is the POST /runtimes body.
type AddRuntimeRequest struct {
	Name           string `json:"name"`
	NixShell       string `json:"nix_shell"`
	CompileScript  string `json:"compile_script"`
	RunScript      string `json:"run_script"`
	SourceFileName string `json:"source_file_name"`

	// Description is accepted and ignored for forward compatibility
	// with earlier drafts of this request that carried it.
	Description string `json:"description,omitempty"`
}

// InstallationResponse is returned by install and update-index calls.
type InstallationResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// ExecutionRequest is the POST /execute body.
type ExecutionRequest struct {
	RuntimeID     uint32  `json:"runtime_id"`
	SourceCode    string  `json:"source_code"`
	Input         *string `json:"input,omitempty"`
	CompileLimits *Limits `json:"compile_limits,omitempty"`
	RunLimits     *Limits `json:"run_limits,omitempty"`
}

// ExecutionResponse is the POST /execute response. Each stage is
// present only if it was actually executed.
type ExecutionResponse struct {
	Extract *StageResult `json:"extract,omitempty"`
	Compile *StageResult `json:"compile,omitempty"`
	Run     *StageResult `json:"run,omitempty"`
}
