// Package config merges the settings file with the command line.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"

	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds every setting. Zero values mean "not set" so that layers can
// be merged; pointers are used where false or zero is a legitimate choice.
type Config struct {
	Timeout     float64 `toml:"timeout"`
	Instance    string  `toml:"instance"`
	ServersFile string  `toml:"servers_file"`
	Server      string  `toml:"server"`
	SRV         *bool   `toml:"srv"`
	Ping        *bool   `toml:"ping"`
	Format      string  `toml:"format"`
}

func Default() Config {
	yes := true
	return Config{
		Timeout: 2.0,
		SRV:     &yes,
		Ping:    &yes,
		Format:  FormatText,
	}
}

// DefaultPath is where the settings file lives when --config is not given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "mcstatus", "config.toml")
}

// Load reads a settings file. A missing file is only an error when the user
// named it explicitly.
func Load(path string, explicit bool) (Config, error) {
	var c Config
	if path == "" {
		return c, nil
	}

	meta, err := toml.DecodeFile(path, &c)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("%w: %s: %w", mcerrors.ErrConfig, path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: %s: unknown key %q", mcerrors.ErrConfig, path, undecoded[0].String())
	}

	return c, nil
}

// Resolve combines command line, settings file and defaults. Picking a
// server source on the command line overrides whichever source the file
// names, the other settings merge key by key.
func Resolve(flags, file Config) (Config, error) {
	if flags.HasSource() {
		file = file.WithoutSource()
	}

	return Merge(flags, file, Default())
}

func (c Config) HasSource() bool {
	return c.Instance != "" || c.ServersFile != "" || c.Server != ""
}

func (c Config) WithoutSource() Config {
	c.Instance, c.ServersFile, c.Server = "", "", ""
	return c
}

// Merge layers the configs, earlier ones win.
func Merge(layers ...Config) (Config, error) {
	var merged Config
	for _, layer := range layers {
		if err := mergo.Merge(&merged, layer); err != nil {
			return Config{}, fmt.Errorf("%w: %w", mcerrors.ErrConfig, err)
		}
	}

	return merged, merged.Validate()
}

func (c Config) Validate() error {
	if !(c.Timeout > 0) || math.IsInf(c.Timeout, 0) {
		return fmt.Errorf("%w: timeout must be a positive number of seconds, got %g", mcerrors.ErrConfig, c.Timeout)
	}

	if c.Format != FormatText && c.Format != FormatJSON {
		return fmt.Errorf("%w: unknown format %q", mcerrors.ErrConfig, c.Format)
	}

	set := 0
	for _, s := range []string{c.Instance, c.ServersFile, c.Server} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("%w: instance, servers_file and server are mutually exclusive", mcerrors.ErrConfig)
	}

	return nil
}

// maxTimeout is the longest timeout a time.Duration can hold, in seconds.
const maxTimeout = float64(math.MaxInt64) / float64(time.Second)

func (c Config) TimeoutDuration() time.Duration {
	if c.Timeout >= maxTimeout {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(c.Timeout * float64(time.Second))
}

func (c Config) UseSRV() bool {
	return c.SRV == nil || *c.SRV
}

func (c Config) UsePing() bool {
	return c.Ping == nil || *c.Ping
}
