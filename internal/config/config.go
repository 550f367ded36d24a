// Package config loads the dashboard server settings from an optional
// chandash.{yaml,toml,json} file, CHANDASH_* environment variables and
// built-in defaults, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Server struct {
	Addr            string
	StaticDir       string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type Data struct {
	Path    string
	Format  string
	Presets string
}

type Geo struct {
	Path            string
	CountryProperty string
}

type Proxy struct {
	Timeout  time.Duration
	Rate     float64
	Burst    int
	MaxBytes int64
}

type Log struct {
	Level  string
	Format string
}

// Config is the full server configuration.
type Config struct {
	Server       Server
	Data         Data
	Geo          Geo
	Proxy        Proxy
	StrictShapes bool
	Log          Log
}

var defaults = map[string]any{
	"server.addr":             ":8080",
	"server.static_dir":       "web",
	"server.allowed_origins":  []string{"*"},
	"server.shutdown_timeout": 30 * time.Second,
	"data.path":               "examples/data/channels.csv",
	"data.format":             "",
	"data.presets":            "",
	"geo.path":                "examples/data/countries.geojson",
	"geo.country_property":    "ISO3166-1-Alpha-2",
	"proxy.timeout":           10 * time.Second,
	"proxy.rate":              20.0,
	"proxy.burst":             40,
	"proxy.max_bytes":         10 << 20,
	"pipeline.strict_shapes":  false,
	"log.level":               "info",
	"log.format":              "text",
}

// Load reads the configuration. path is either a config file or a directory
// searched for chandash.*; an empty path searches the working directory. A
// missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("CHANDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" && filepath.Ext(path) != "" {
		v.SetConfigFile(path)
	} else {
		if path == "" {
			path = "."
		}
		v.SetConfigName("chandash")
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:            v.GetString("server.addr"),
			StaticDir:       v.GetString("server.static_dir"),
			AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Data: Data{
			Path:    v.GetString("data.path"),
			Format:  v.GetString("data.format"),
			Presets: v.GetString("data.presets"),
		},
		Geo: Geo{
			Path:            v.GetString("geo.path"),
			CountryProperty: v.GetString("geo.country_property"),
		},
		Proxy: Proxy{
			Timeout:  v.GetDuration("proxy.timeout"),
			Rate:     v.GetFloat64("proxy.rate"),
			Burst:    v.GetInt("proxy.burst"),
			MaxBytes: v.GetInt64("proxy.max_bytes"),
		},
		StrictShapes: v.GetBool("pipeline.strict_shapes"),
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Proxy.Rate <= 0 || c.Proxy.Burst <= 0 {
		return fmt.Errorf("proxy.rate and proxy.burst must be positive, got %v and %d", c.Proxy.Rate, c.Proxy.Burst)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
