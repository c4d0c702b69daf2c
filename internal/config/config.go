package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/shield/internal/model"
)

const (
	// DefaultFile is read from the working directory when no config file
	// is named explicitly. It is optional.
	DefaultFile = "shield.yaml"
	// FileEnv names a config file, like the --config flag.
	FileEnv = "SHIELD_CONFIG"

	DefaultHarnessCommand = "python"
	DefaultMarionettePort = 2828
)

// Config holds every setting shield consumes.
type Config struct {
	Binary      null.String `yaml:"binary" envconfig:"SHIELD_BINARY"`
	ProfileDir  null.String `yaml:"profileDir" envconfig:"SHIELD_PROFILE_DIR"`
	KeepProfile null.Bool   `yaml:"keepProfile" envconfig:"SHIELD_KEEP_PROFILE"`
	KeepOpen    null.Bool   `yaml:"keepOpen" envconfig:"SHIELD_KEEP_OPEN"`

	HarnessCommand null.String  `yaml:"harnessCommand" envconfig:"SHIELD_HARNESS_COMMAND"`
	HarnessScript  null.String  `yaml:"harnessScript" envconfig:"SHIELD_HARNESS_SCRIPT"`
	HarnessTimeout NullDuration `yaml:"harnessTimeout" envconfig:"SHIELD_HARNESS_TIMEOUT"`

	MarionettePort null.Int     `yaml:"marionettePort" envconfig:"SHIELD_MARIONETTE_PORT"`
	MarionetteWait NullDuration `yaml:"marionetteWait" envconfig:"SHIELD_MARIONETTE_WAIT"`
}

// Defaults returns the built-in settings. Binary and HarnessScript stay
// unset: they are resolved at use time (browser discovery and the
// executable's directory respectively).
func Defaults() Config {
	return Config{
		ProfileDir:     null.StringFrom(os.TempDir()),
		KeepProfile:    null.BoolFrom(false),
		KeepOpen:       null.BoolFrom(false),
		HarnessCommand: null.StringFrom(DefaultHarnessCommand),
		HarnessTimeout: NullDurationFrom(0),
		MarionettePort: null.IntFrom(DefaultMarionettePort),
		MarionetteWait: NullDurationFrom(0),
	}
}

// Apply returns c overridden by every valid value in cfg.
func (c Config) Apply(cfg Config) Config {
	if cfg.Binary.Valid {
		c.Binary = cfg.Binary
	}
	if cfg.ProfileDir.Valid {
		c.ProfileDir = cfg.ProfileDir
	}
	if cfg.KeepProfile.Valid {
		c.KeepProfile = cfg.KeepProfile
	}
	if cfg.KeepOpen.Valid {
		c.KeepOpen = cfg.KeepOpen
	}
	if cfg.HarnessCommand.Valid {
		c.HarnessCommand = cfg.HarnessCommand
	}
	if cfg.HarnessScript.Valid {
		c.HarnessScript = cfg.HarnessScript
	}
	if cfg.HarnessTimeout.Valid {
		c.HarnessTimeout = cfg.HarnessTimeout
	}
	if cfg.MarionettePort.Valid {
		c.MarionettePort = cfg.MarionettePort
	}
	if cfg.MarionetteWait.Valid {
		c.MarionetteWait = cfg.MarionetteWait
	}
	return c
}

// Validate rejects values no component can use.
func (c Config) Validate() error {
	var errs []error
	if c.MarionettePort.Valid && (c.MarionettePort.Int64 < 1 || c.MarionettePort.Int64 > 65535) {
		errs = append(errs, fmt.Errorf("marionettePort must be between 1 and 65535, got %d", c.MarionettePort.Int64))
	}
	if c.HarnessTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("harnessTimeout must not be negative, got %s", c.HarnessTimeout.Duration))
	}
	if c.MarionetteWait.Duration < 0 {
		errs = append(errs, fmt.Errorf("marionetteWait must not be negative, got %s", c.MarionetteWait.Duration))
	}
	return errors.Join(errs...)
}

// ReadFile reads a YAML config file. A missing file is only an error when
// explicit is set; otherwise it yields an empty Config.
func ReadFile(fs afero.Fs, path string, explicit bool) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var conf Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return conf, nil
}

// ReadEnv reads SHIELD_* variables through lookup.
func ReadEnv(lookup func(string) (string, bool)) (Config, error) {
	var conf Config
	if err := envconfig.Process("", &conf, lookup); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return conf, nil
}

// FromFlags returns the settings given on the command line. Flags the set
// does not define, or that were not passed, stay unset.
func FromFlags(flags *pflag.FlagSet) Config {
	return Config{
		Binary:         getNullString(flags, "binary"),
		KeepProfile:    getNullBool(flags, "keep-profile"),
		KeepOpen:       getNullBool(flags, "keep-open"),
		HarnessTimeout: getNullDuration(flags, "timeout"),
		MarionetteWait: getNullDuration(flags, "marionette-wait"),
	}
}

// FilePath returns the config file to read and whether it was named
// explicitly, either by the --config flag or by SHIELD_CONFIG.
func FilePath(flags *pflag.FlagSet, lookup func(string) (string, bool)) (string, bool) {
	if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), true
	}
	if v, ok := lookup(FileEnv); ok && v != "" {
		return v, true
	}
	return DefaultFile, false
}

// Load consolidates defaults, the config file, the environment and flags
// into one validated Config. Failures are CONFIGURATION_ERRORs.
func Load(fs afero.Fs, flags *pflag.FlagSet, lookup func(string) (string, bool)) (Config, error) {
	path, explicit := FilePath(flags, lookup)
	fileConf, err := ReadFile(fs, path, explicit)
	if err != nil {
		return Config{}, model.ConfigurationError("invalid configuration", err)
	}

	envConf, err := ReadEnv(lookup)
	if err != nil {
		return Config{}, model.ConfigurationError("invalid configuration", err)
	}

	conf := Defaults().Apply(fileConf).Apply(envConf).Apply(FromFlags(flags))
	if err := conf.Validate(); err != nil {
		return Config{}, model.ConfigurationError("invalid configuration", err)
	}
	return conf, nil
}

func getNullBool(flags *pflag.FlagSet, key string) null.Bool {
	if flags.Lookup(key) == nil {
		return null.Bool{}
	}
	v, err := flags.GetBool(key)
	if err != nil {
		panic(err)
	}
	return null.NewBool(v, flags.Changed(key))
}

func getNullString(flags *pflag.FlagSet, key string) null.String {
	if flags.Lookup(key) == nil {
		return null.String{}
	}
	v, err := flags.GetString(key)
	if err != nil {
		panic(err)
	}
	return null.NewString(v, flags.Changed(key))
}

func getNullDuration(flags *pflag.FlagSet, key string) NullDuration {
	if flags.Lookup(key) == nil {
		return NullDuration{}
	}
	v, err := flags.GetDuration(key)
	if err != nil {
		panic(err)
	}
	return NewNullDuration(v, flags.Changed(key))
}
