// Package config loads the configuration of the engine and of the nanomcp
// binary.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/mcp"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

// Config of the nanomcp server
type Config struct {
	Server   Server   `json:"server" yaml:"server"`
	Protocol Protocol `json:"protocol" yaml:"protocol"`
	Log      Log      `json:"log" yaml:"log"`
}

// Server describes the implementation announced to peers
type Server struct {
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// Protocol specifies session limits. Durations are in milliseconds,
// zero selects the default.
type Protocol struct {
	Versions           []string `json:"versions,omitempty" yaml:"versions,omitempty" validate:"dive,protocol_version"`
	HandshakeTimeoutMs int64    `json:"handshake_timeout_ms,omitempty" yaml:"handshake_timeout_ms,omitempty" validate:"gte=0"`
	CallTimeoutMs      int64    `json:"call_timeout_ms,omitempty" yaml:"call_timeout_ms,omitempty" validate:"gte=0"`
	DrainTimeoutMs     int64    `json:"drain_timeout_ms,omitempty" yaml:"drain_timeout_ms,omitempty" validate:"gte=0"`
	RequestTimeoutMs   int64    `json:"request_timeout_ms,omitempty" yaml:"request_timeout_ms,omitempty" validate:"gte=0"`
	PageSize           int      `json:"page_size,omitempty" yaml:"page_size,omitempty" validate:"gte=0"`
	MaxConcurrentCalls int64    `json:"max_concurrent_calls,omitempty" yaml:"max_concurrent_calls,omitempty" validate:"gte=0"`
}

// Log specifies logging
type Log struct {
	// Level is one of TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL
	Level string `json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,log_level"`
}

var levels = map[string]xlog.LogLevel{
	"TRACE":    xlog.TRACE,
	"DEBUG":    xlog.DEBUG,
	"INFO":     xlog.INFO,
	"NOTICE":   xlog.NOTICE,
	"WARNING":  xlog.WARNING,
	"ERROR":    xlog.ERROR,
	"CRITICAL": xlog.CRITICAL,
}

// Load returns the configuration from the file, with defaults applied.
// An empty file name returns the defaults.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load %s", file)
		}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid configuration %s", file)
	}
	return cfg, nil
}

// SetDefaults fills zero values
func (c *Config) SetDefaults() {
	c.Server.Name = values.StringsCoalesce(c.Server.Name, "nanomcp")
	c.Server.Version = values.StringsCoalesce(c.Server.Version, "dev")
	c.Log.Level = strings.ToUpper(values.StringsCoalesce(c.Log.Level, "INFO"))
	if len(c.Protocol.Versions) == 0 {
		c.Protocol.Versions = append([]string(nil), mcp.SupportedProtocolVersions...)
	}
	c.Protocol.HandshakeTimeoutMs = values.NumbersCoalesce(c.Protocol.HandshakeTimeoutMs, mcp.DefaultHandshakeTimeout.Milliseconds())
	c.Protocol.CallTimeoutMs = values.NumbersCoalesce(c.Protocol.CallTimeoutMs, mcp.DefaultCallTimeout.Milliseconds())
	c.Protocol.DrainTimeoutMs = values.NumbersCoalesce(c.Protocol.DrainTimeoutMs, mcp.DefaultDrainTimeout.Milliseconds())
	c.Protocol.RequestTimeoutMs = values.NumbersCoalesce(c.Protocol.RequestTimeoutMs, mcp.DefaultRequestTimeout.Milliseconds())
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("protocol_version", func(fl validator.FieldLevel) bool {
		for _, ver := range mcp.SupportedProtocolVersions {
			if fl.Field().String() == ver {
				return true
			}
		}
		return false
	})
	_ = v.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
		_, ok := levels[strings.ToUpper(fl.Field().String())]
		return ok
	})
	return v
}

// LogLevel returns the configured xlog level
func (c *Config) LogLevel() xlog.LogLevel {
	if l, ok := levels[strings.ToUpper(c.Log.Level)]; ok {
		return l
	}
	return xlog.INFO
}

// Options returns the session options
func (c *Config) Options() mcp.Options {
	o := c.Protocol.Options()
	o.Name = c.Server.Name
	o.Version = c.Server.Version
	o.Instructions = c.Server.Instructions
	return o
}

// Options returns the session options of the protocol section
func (p *Protocol) Options() mcp.Options {
	return mcp.Options{
		Versions:           p.Versions,
		HandshakeTimeout:   ms(p.HandshakeTimeoutMs),
		CallTimeout:        ms(p.CallTimeoutMs),
		DrainTimeout:       ms(p.DrainTimeoutMs),
		RequestTimeout:     ms(p.RequestTimeoutMs),
		PageSize:           p.PageSize,
		MaxConcurrentCalls: p.MaxConcurrentCalls,
	}
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
