// Package settings provides configuration loading for shadow.
// Settings live in the global storage root so they apply to every workspace.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/spf13/pflag"
)

// Repository modes
const (
	// ModeTask keeps one shadow repository per task.
	ModeTask = "task"
	// ModeWorkspace shares one shadow repository per workspace, one branch per task.
	ModeWorkspace = "workspace"
)

// Defaults applied when a value is missing or zero
const (
	DefaultMode               = ModeTask
	DefaultLockRetryAttempts  = 3
	DefaultLockRetryDelayMS   = 1000
	DefaultCheckoutTimeoutMS  = 2000
	DefaultCheckoutIntervalMS = 500
)

// Settings represents <storage root>/settings.json
type Settings struct {
	// Mode selects how shadow repositories are laid out: "task" or "workspace".
	Mode string `json:"mode"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Can be overridden by SHADOW_LOG_LEVEL environment variable.
	LogLevel string `json:"log_level,omitempty"`

	// LockRetryAttempts bounds how often a git mutation is attempted while
	// another process holds the index lock.
	LockRetryAttempts int `json:"lock_retry_attempts,omitempty"`

	// LockRetryDelayMS is the fixed wait between lock retries.
	LockRetryDelayMS int `json:"lock_retry_delay_ms,omitempty"`

	// CheckoutTimeoutMS bounds the wait for a branch checkout to take effect
	// when deleting a task branch.
	CheckoutTimeoutMS int `json:"checkout_timeout_ms,omitempty"`

	// CheckoutIntervalMS is the poll interval for that wait.
	CheckoutIntervalMS int `json:"checkout_interval_ms,omitempty"`

	// ExtraExcludes are appended to the built-in exclude patterns.
	ExtraExcludes []string `json:"extra_excludes,omitempty"`

	// Telemetry controls anonymous usage analytics.
	// nil = not configured (disabled), true = opted in, false = opted out
	Telemetry *bool `json:"telemetry,omitempty"`
}

// Load loads settings from <storageRoot>/settings.json, then applies any
// overrides from <storageRoot>/settings.local.json if it exists.
// Returns default settings if neither file exists.
func Load(storageRoot string) (*Settings, error) {
	settings, err := loadFromFile(filepath.Join(storageRoot, paths.SettingsFileName))
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	localData, err := os.ReadFile(filepath.Join(storageRoot, paths.SettingsLocalFileName)) //nolint:gosec // path is built from storage root
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
	} else if err := mergeJSON(settings, localData); err != nil {
		return nil, fmt.Errorf("merging local settings: %w", err)
	}

	applyDefaults(settings)
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// loadFromFile loads settings from a specific file path.
// Returns default settings if the file doesn't exist.
func loadFromFile(filePath string) (*Settings, error) {
	settings := &Settings{Mode: DefaultMode}

	data, err := os.ReadFile(filePath) //nolint:gosec // path is from caller
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(settings)
			return settings, nil
		}
		return nil, fmt.Errorf("%w", err)
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	applyDefaults(settings)

	return settings, nil
}

// mergeJSON merges JSON data into existing settings.
// Only fields present in the JSON override existing settings.
func mergeJSON(settings *Settings, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	if err := mergeString(raw, "mode", &settings.Mode); err != nil {
		return err
	}
	if err := mergeString(raw, "log_level", &settings.LogLevel); err != nil {
		return err
	}
	for key, dst := range map[string]*int{
		"lock_retry_attempts":  &settings.LockRetryAttempts,
		"lock_retry_delay_ms":  &settings.LockRetryDelayMS,
		"checkout_timeout_ms":  &settings.CheckoutTimeoutMS,
		"checkout_interval_ms": &settings.CheckoutIntervalMS,
	} {
		if err := mergeInt(raw, key, dst); err != nil {
			return err
		}
	}

	// extra_excludes accumulate rather than replace
	if excludesRaw, ok := raw["extra_excludes"]; ok {
		var extra []string
		if err := json.Unmarshal(excludesRaw, &extra); err != nil {
			return fmt.Errorf("parsing extra_excludes field: %w", err)
		}
		settings.ExtraExcludes = append(settings.ExtraExcludes, extra...)
	}

	if telemetryRaw, ok := raw["telemetry"]; ok {
		var t bool
		if err := json.Unmarshal(telemetryRaw, &t); err != nil {
			return fmt.Errorf("parsing telemetry field: %w", err)
		}
		settings.Telemetry = &t
	}

	return nil
}

func mergeString(raw map[string]json.RawMessage, key string, dst *string) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return fmt.Errorf("parsing %s field: %w", key, err)
	}
	if s != "" {
		*dst = s
	}
	return nil
}

func mergeInt(raw map[string]json.RawMessage, key string, dst *int) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return fmt.Errorf("parsing %s field: %w", key, err)
	}
	if n > 0 {
		*dst = n
	}
	return nil
}

func applyDefaults(settings *Settings) {
	if settings.Mode == "" {
		settings.Mode = DefaultMode
	}
	if settings.LockRetryAttempts <= 0 {
		settings.LockRetryAttempts = DefaultLockRetryAttempts
	}
	if settings.LockRetryDelayMS <= 0 {
		settings.LockRetryDelayMS = DefaultLockRetryDelayMS
	}
	if settings.CheckoutTimeoutMS <= 0 {
		settings.CheckoutTimeoutMS = DefaultCheckoutTimeoutMS
	}
	if settings.CheckoutIntervalMS <= 0 {
		settings.CheckoutIntervalMS = DefaultCheckoutIntervalMS
	}
}

// Validate reports settings that cannot be used.
func (s *Settings) Validate() error {
	switch s.Mode {
	case ModeTask, ModeWorkspace:
		return nil
	default:
		return fmt.Errorf("invalid mode %q: must be %q or %q", s.Mode, ModeTask, ModeWorkspace)
	}
}

// ApplyFlags overrides settings with command-line flags the user set explicitly.
// Recognized flags: --mode and --log-level.
func (s *Settings) ApplyFlags(fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	if f := fs.Lookup("mode"); f != nil && f.Changed {
		s.Mode = f.Value.String()
	}
	if f := fs.Lookup("log-level"); f != nil && f.Changed {
		s.LogLevel = f.Value.String()
	}
	return s.Validate()
}

// LockRetryDelay returns the lock retry delay as a duration.
func (s *Settings) LockRetryDelay() time.Duration {
	return time.Duration(s.LockRetryDelayMS) * time.Millisecond
}

// CheckoutTimeout returns the branch checkout wait bound as a duration.
func (s *Settings) CheckoutTimeout() time.Duration {
	return time.Duration(s.CheckoutTimeoutMS) * time.Millisecond
}

// CheckoutInterval returns the branch checkout poll interval as a duration.
func (s *Settings) CheckoutInterval() time.Duration {
	return time.Duration(s.CheckoutIntervalMS) * time.Millisecond
}
