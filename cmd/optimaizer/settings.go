package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Drakonis96/optimAIzer-sub001/internal/config"
)

// settings layers the optional YAML settings file under the command-line
// flags. A flag the invoker set wins; otherwise a key present in the file
// wins; everything else falls through to the environment loader, so the
// usual precedence reads flag > settings file > environment > defaults.
type settings struct {
	v *viper.Viper
}

func newSettings() *settings {
	v := viper.New()
	v.SetConfigName("optimaizer")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.optimaizer")
	v.AddConfigPath(".")
	return &settings{v: v}
}

// load reads the settings file. An explicit path must exist; the search-path
// file is optional.
func (s *settings) load(path string) error {
	if path != "" {
		s.v.SetConfigFile(path)
		return s.v.ReadInConfig()
	}
	if err := s.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// overrides resolves the loader overrides from the given flag set plus the
// settings file. Flags the set does not declare simply resolve to the file
// value or nothing, so serve and repl share this with their own flag sets.
func (s *settings) overrides(flags *pflag.FlagSet) config.Overrides {
	return config.Overrides{
		Port:        s.intValue(flags, "port", "port"),
		CORSOrigin:  s.stringValue(flags, "cors-origin", "cors_origin"),
		Environment: s.stringValue(flags, "environment", "environment"),
		DBPath:      s.stringValue(flags, "db-path", "db_path"),
		EnvPath:     s.stringValue(flags, "env-file", "env_file"),
		LogLevel:    s.stringValue(flags, "log-level", "log_level"),
		LogFormat:   s.stringValue(flags, "log-format", "log_format"),
	}
}

func (s *settings) stringValue(flags *pflag.FlagSet, flag, key string) *string {
	if flags.Changed(flag) {
		value, _ := flags.GetString(flag)
		return &value
	}
	if s.v.InConfig(key) {
		value := s.v.GetString(key)
		return &value
	}
	return nil
}

func (s *settings) intValue(flags *pflag.FlagSet, flag, key string) *int {
	if flags.Changed(flag) {
		value, _ := flags.GetInt(flag)
		return &value
	}
	if s.v.InConfig(key) {
		value := s.v.GetInt(key)
		return &value
	}
	return nil
}
