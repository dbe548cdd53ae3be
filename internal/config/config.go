// Package config loads process configuration from the environment
// (optionally seeded from a .env file), failing fast on any missing
// or malformed required variable rather than silently defaulting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"coderunner/internal/model"
	"github.com/joho/godotenv"
)

const defaultPort = "5000"

// Config holds every value the server needs to start.
type Config struct {
	Port                     string
	InstallationTimeout      time.Duration
	UpdateTimeout            time.Duration
	MaxConcurrentSubmissions int64
	SystemLimits             model.SystemLimits

	DatabasePath string
	RuntimesRoot string
	NixBinPath   string
	WorkDirRoot  string
}

// Load reads .env (if present) then the process environment, building
// a fully-validated Config or returning the first error encountered.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// A missing .env is fine; environment variables may be set
		// directly (container/systemd deployment). Only a malformed
		// file should surface, and godotenv.Load doesn't distinguish
		// that case from "file not found" in its error, so we proceed
		// either way and let required-variable checks below fail fast
		// if the environment truly is incomplete.
		_ = err
	}

	c := &Config{}
	c.Port = getEnvDefault("PORT", defaultPort)
	c.DatabasePath = getEnvDefault("DATABASE_PATH", "/var/lib/coderunner/registry.db")
	c.RuntimesRoot = getEnvDefault("RUNTIMES_ROOT", "/var/lib/coderunner/runtimes")
	c.NixBinPath = getEnvDefault("NIX_BIN_PATH", "/home/coderunner/.nix-profile/bin")
	c.WorkDirRoot = getEnvDefault("WORK_DIR_ROOT", "/tmp")

	installationTimeout, err := requireWholeSeconds("INSTALLATION_TIMEOUT")
	if err != nil {
		return nil, err
	}
	c.InstallationTimeout = installationTimeout

	updateTimeout, err := requireWholeSeconds("UPDATE_TIMEOUT")
	if err != nil {
		return nil, err
	}
	c.UpdateTimeout = updateTimeout

	maxConcurrent, err := requirePositiveInt("MAX_CONCURRENT_SUBMISSIONS")
	if err != nil {
		return nil, err
	}
	c.MaxConcurrentSubmissions = maxConcurrent

	compile, err := requireLimitSeptet("COMPILE")
	if err != nil {
		return nil, err
	}
	run, err := requireLimitSeptet("RUN")
	if err != nil {
		return nil, err
	}
	c.SystemLimits = model.SystemLimits{Compile: compile, Run: run}

	return c, nil
}

func getEnvDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func requireEnv(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required environment variable %s", key)
	}
	return v, nil
}

func requireWholeSeconds(key string) (time.Duration, error) {
	v, err := requireEnv(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number of seconds, got %q: %w", key, v, err)
	}
	return time.Duration(n) * time.Second, nil
}

func requirePositiveInt(key string) (int64, error) {
	v, err := requireEnv(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func requireFloat(key string) (float64, error) {
	v, err := requireEnv(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q: %w", key, v, err)
	}
	return n, nil
}

func requireUint32(key string) (uint32, error) {
	v, err := requireEnv(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q: %w", key, v, err)
	}
	return uint32(n), nil
}

// requireLimitSeptet reads the seven <prefix>_* limit variables
// (spec §6) into a MandatoryLimits.
func requireLimitSeptet(prefix string) (model.MandatoryLimits, error) {
	wallTime, err := requireFloat(prefix + "_WALL_TIME")
	if err != nil {
		return model.MandatoryLimits{}, err
	}
	cpuTime, err := requireFloat(prefix + "_CPU_TIME")
	if err != nil {
		return model.MandatoryLimits{}, err
	}
	memory, err := requireUint32(prefix + "_MEMORY")
	if err != nil {
		return model.MandatoryLimits{}, err
	}
	extraTime, err := requireFloat(prefix + "_EXTRA_TIME")
	if err != nil {
		return model.MandatoryLimits{}, err
	}
	maxOpenFiles, err := requireUint32(prefix + "_MAX_OPEN_FILES")
	if err != nil {
		return model.MandatoryLimits{}, err
	}
	maxFileSize, err := requireUint32(prefix + "_MAX_FILE_SIZE")
	if err != nil {
		return model.MandatoryLimits{}, err
	}
	maxProcesses, err := requireUint32(prefix + "_MAX_NUMBER_OF_PROCESSES")
	if err != nil {
		return model.MandatoryLimits{}, err
	}

	return model.MandatoryLimits{
		WallTime:             wallTime,
		CPUTime:              cpuTime,
		Memory:               memory,
		ExtraTime:            extraTime,
		MaxOpenFiles:         maxOpenFiles,
		MaxFileSize:          maxFileSize,
		MaxNumberOfProcesses: maxProcesses,
	}, nil
}
