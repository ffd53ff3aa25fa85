// Package runtimeconfig loads the optional YAML tool-defaults file (A2):
// defaults for flags that are tedious to always pass on the command line.
// Precedence, lowest to highest: built-in defaults -> YAML file ->
// environment variables -> CLI flags (the CLI layer applies the last step
// by only overriding a Defaults field when its flag was explicitly set).
// Grounded on internal/config/config.go's LoadConfig layering (defaults,
// then file, then env), trimmed to this tool's much smaller surface.
package runtimeconfig

import (
	"os"
	"strconv"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"gopkg.in/yaml.v2"
)

const component = "runtimeconfig"

// Defaults supplies tool defaults that the CLI (A1) falls back to when the
// corresponding flag was not passed.
type Defaults struct {
	LogLevel     string                   `yaml:"log_level"`
	LogFormat    string                   `yaml:"log_format"`
	MetricsAddr  string                   `yaml:"metrics_addr"`
	Deletion     profile.DataSourceDeletion `yaml:"-"`
	DeletionName string                   `yaml:"deletion"`
}

// builtinDefaults is the lowest-precedence layer.
func builtinDefaults() Defaults {
	return Defaults{
		LogLevel:     "info",
		LogFormat:    "text",
		MetricsAddr:  "",
		Deletion:     profile.DataSourceDeletionRetain,
		DeletionName: "retain",
	}
}

// Load builds Defaults by layering the built-in defaults, then (if path is
// non-empty) the YAML file at path, then environment variable overrides.
// A missing path is not an error when the caller never asked for one (path
// == ""); a path that does not exist or does not parse is.
func Load(path string) (Defaults, error) {
	defaults := builtinDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Defaults{}, apperr.New(apperr.CodeConfigLoad, component, "Load", "could not read runtime config file").Wrap(err)
		}
		if err := yaml.Unmarshal(data, &defaults); err != nil {
			return Defaults{}, apperr.New(apperr.CodeConfigLoad, component, "Load", "could not parse runtime config file").Wrap(err)
		}
	}

	applyEnvironmentOverrides(&defaults)

	deletion, err := parseDeletion(defaults.DeletionName)
	if err != nil {
		return Defaults{}, err
	}
	defaults.Deletion = deletion

	return defaults, nil
}

func applyEnvironmentOverrides(defaults *Defaults) {
	if v := os.Getenv("SBIP_LOG_LEVEL"); v != "" {
		defaults.LogLevel = v
	}
	if v := os.Getenv("SBIP_LOG_FORMAT"); v != "" {
		defaults.LogFormat = v
	}
	if v := os.Getenv("SBIP_METRICS_ADDR"); v != "" {
		defaults.MetricsAddr = v
	}
	if v := os.Getenv("SBIP_DELETION"); v != "" {
		defaults.DeletionName = v
	}
}

func parseDeletion(name string) (profile.DataSourceDeletion, error) {
	switch name {
	case "", "retain":
		return profile.DataSourceDeletionRetain, nil
	case "delete":
		return profile.DataSourceDeletionDelete, nil
	default:
		return 0, apperr.New(apperr.CodeConfigLoad, component, "parseDeletion", "deletion must be \"retain\" or \"delete\", got "+strconv.Quote(name))
	}
}
