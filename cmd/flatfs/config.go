package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aligator/flatfs"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// GlobalConfig is the global tool configuration
type GlobalConfig struct {
	// Time is the default time policy of `put`.
	Time TimePolicy `yaml:"time"`
	// Format is the default geometry of `format`.
	Format flatfs.Geometry `yaml:"format"`
}

// DefaultConfig is used for everything the config file does not set.
func DefaultConfig() GlobalConfig {
	return GlobalConfig{
		Time:   TimeNow,
		Format: flatfs.DefaultGeometry,
	}
}

func defaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "flatfs", "config.yml")
}

// readConfig reads the YAML config at path on top of DefaultConfig.
// A missing file is only an error if it was requested explicitly.
func readConfig(afs afero.Fs, path string, explicit bool) (GlobalConfig, error) {
	config := DefaultConfig()

	cfgBytes, err := afero.ReadFile(afs, path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return config, nil
		}
		return config, fmt.Errorf("failed to read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(cfgBytes, &config); err != nil {
		return config, fmt.Errorf("failed to parse %q: %w", path, err)
	}

	if err := config.Time.Set(string(config.Time)); err != nil {
		return config, fmt.Errorf("invalid time in %q: %w", path, err)
	}

	return config, nil
}

// TimePolicy selects the time stored in new directory entries.
type TimePolicy string

var _ pflag.Value = (*TimePolicy)(nil)

const (
	// TimeNow stores the current UTC time.
	TimeNow TimePolicy = "now"
	// TimeZero stores all zero bytes.
	TimeZero TimePolicy = "zero"
)

func (p *TimePolicy) String() string {
	return string(*p)
}

func (p *TimePolicy) Set(value string) error {
	switch TimePolicy(value) {
	case TimeNow, TimeZero:
		*p = TimePolicy(value)
		return nil
	}
	return fmt.Errorf("unknown time policy %q, use %q or %q", value, TimeNow, TimeZero)
}

func (p *TimePolicy) Type() string {
	return "policy"
}

// Clock returns the clock implementing the policy.
func (p TimePolicy) Clock() flatfs.Clock {
	if p == TimeZero {
		return flatfs.ZeroClock{}
	}
	return flatfs.SystemClock{}
}
