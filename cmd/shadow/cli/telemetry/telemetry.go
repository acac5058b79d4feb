// Package telemetry reports anonymous command usage when the user opts in.
package telemetry

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// OptOutEnvVar disables telemetry regardless of settings when set to any value.
const OptOutEnvVar = "SHADOW_TELEMETRY_OPTOUT"

const (
	appID            = "shadow-cli"
	commandEventName = "cli_command_executed"
)

var (
	// PostHogAPIKey is set at build time for production
	PostHogAPIKey = "phc_development_key"
	// PostHogEndpoint is set at build time for production
	PostHogEndpoint = "https://eu.i.posthog.com"
)

// Client records command usage.
type Client interface {
	TrackCommand(cmd *cobra.Command, mode string)
	Close()
}

// NoOpClient is used when telemetry is disabled.
type NoOpClient struct{}

func (n *NoOpClient) TrackCommand(_ *cobra.Command, _ string) {}
func (n *NoOpClient) Close()                                  {}

type silentLogger struct{}

func (silentLogger) Logf(_ string, _ ...interface{})   {}
func (silentLogger) Debugf(_ string, _ ...interface{}) {}
func (silentLogger) Warnf(_ string, _ ...interface{})  {}
func (silentLogger) Errorf(_ string, _ ...interface{}) {}

// PostHogClient sends events to PostHog.
type PostHogClient struct {
	client    posthog.Client
	machineID string
	mu        sync.RWMutex
}

// NewClient returns a PostHogClient only when enabled is set to true and the
// opt-out variable is unset. A nil enabled means the user never chose.
//
//nolint:ireturn // returns NoOpClient or PostHogClient depending on settings
func NewClient(version string, enabled *bool) Client {
	if os.Getenv(OptOutEnvVar) != "" {
		return &NoOpClient{}
	}
	if enabled == nil || !*enabled {
		return &NoOpClient{}
	}

	id, err := machineid.ProtectedID(appID)
	if err != nil {
		return &NoOpClient{}
	}

	// Telemetry must never hold up process exit
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 100 * time.Millisecond,
		}).DialContext,
		TLSHandshakeTimeout:   100 * time.Millisecond,
		ResponseHeaderTimeout: 100 * time.Millisecond,
	}

	client, err := posthog.NewWithConfig(PostHogAPIKey, posthog.Config{
		Endpoint:           PostHogEndpoint,
		ShutdownTimeout:    100 * time.Millisecond,
		BatchUploadTimeout: 200 * time.Millisecond,
		Transport:          transport,
		Logger:             silentLogger{},
		DisableGeoIP:       posthog.Ptr(true),
		DefaultEventProperties: posthog.NewProperties().
			Set("cli_version", version).
			Set("os", runtime.GOOS).
			Set("arch", runtime.GOARCH),
	})
	if err != nil {
		return &NoOpClient{}
	}

	return &PostHogClient{client: client, machineID: id}
}

// TrackCommand enqueues one event for cmd. Only flag names are sent, never
// their values. Hidden commands and help are skipped.
func (p *PostHogClient) TrackCommand(cmd *cobra.Command, mode string) {
	props, ok := CommandProperties(cmd, mode)
	if !ok {
		return
	}

	p.mu.RLock()
	id := p.machineID
	c := p.client
	p.mu.RUnlock()

	if c == nil {
		return
	}

	//nolint:errcheck // best effort
	_ = c.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      commandEventName,
		Properties: props,
	})
}

// Close flushes pending events.
func (p *PostHogClient) Close() {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()

	if c != nil {
		_ = c.Close()
	}
}

// CommandProperties builds the event properties for cmd. It reports false
// for commands that are not tracked.
func CommandProperties(cmd *cobra.Command, mode string) (posthog.Properties, bool) {
	if cmd == nil || cmd.Hidden || cmd.Name() == "help" {
		return nil, false
	}

	var flags []string
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		flags = append(flags, flag.Name)
	})
	sort.Strings(flags)

	props := posthog.NewProperties().
		Set("command", cmd.CommandPath()).
		Set("mode", mode)
	if len(flags) > 0 {
		props.Set("flags", strings.Join(flags, ","))
	}
	return props, true
}
