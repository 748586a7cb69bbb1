// Package config loads the YAML workflow/runtime configuration consumed by
// cmd/reactorctl. It is intentionally thin: ambient CLI plumbing, not part
// of the engine's core public API.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AdapterConfig names an adapter kind and its backend-specific options.
type AdapterConfig struct {
	Kind    string         `yaml:"kind"`
	Options map[string]any `yaml:"options"`
}

// StoreConfig names a signal store kind and its backend-specific options.
type StoreConfig struct {
	Kind    string         `yaml:"kind"`
	Options map[string]any `yaml:"options"`
}

// HarnessConfig names a harness backend kind and its backend-specific
// options.
type HarnessConfig struct {
	Kind    string         `yaml:"kind"`
	Options map[string]any `yaml:"options"`
}

// HarnessRateLimit configures the token bucket reactor.Run wraps every live
// harness call with. A zero value (or an absent section) disables
// throttling.
type HarnessRateLimit struct {
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

// Workflow is the top-level shape of a reactorctl run configuration file.
type Workflow struct {
	Adapters         []AdapterConfig  `yaml:"adapters"`
	Store            StoreConfig      `yaml:"store"`
	Harness          HarnessConfig    `yaml:"harness"`
	Timeout          Duration         `yaml:"timeout"`
	HarnessRateLimit HarnessRateLimit `yaml:"harnessRateLimit"`
}

// Duration unmarshals a YAML duration string ("30s", "2m") into a
// time.Duration, since yaml.v3 has no built-in support for Go's duration
// syntax.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and parses the YAML workflow configuration at path.
func Load(path string) (Workflow, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Workflow{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var w Workflow
	if err := yaml.Unmarshal(buf, &w); err != nil {
		return Workflow{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return w, nil
}
