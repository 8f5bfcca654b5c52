package config_test

import (
	"testing"
	"time"

	"github.com/effective-security/nanomcp/config"
	"github.com/effective-security/nanomcp/mcp"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("NANOMCP_INSTRUCTIONS", "call add to sum numbers")

	cfg, err := config.Load("testdata/nanomcp.yaml")
	require.NoError(t, err)
	assert.Equal(t, "calc", cfg.Server.Name)
	assert.Equal(t, "1.2.0", cfg.Server.Version)
	assert.Equal(t, "call add to sum numbers", cfg.Server.Instructions)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.Equal(t, xlog.DEBUG, cfg.LogLevel())

	o := cfg.Options()
	assert.Equal(t, "calc", o.Name)
	assert.Equal(t, "call add to sum numbers", o.Instructions)
	assert.Equal(t, []string{mcp.ProtocolVersion20250618, mcp.ProtocolVersion20250326}, o.Versions)
	assert.Equal(t, 5*time.Second, o.HandshakeTimeout)
	assert.Equal(t, 2500*time.Millisecond, o.CallTimeout)
	assert.Equal(t, mcp.DefaultDrainTimeout, o.DrainTimeout)
	assert.Equal(t, mcp.DefaultRequestTimeout, o.RequestTimeout)
	assert.Equal(t, 20, o.PageSize)
	assert.Equal(t, int64(8), o.MaxConcurrentCalls)
}

func TestLoadJSON(t *testing.T) {
	cfg, err := config.Load("testdata/nanomcp.json")
	require.NoError(t, err)
	assert.Equal(t, "calc-json", cfg.Server.Name)
	assert.Equal(t, "dev", cfg.Server.Version)
	assert.Equal(t, 1500*time.Millisecond, cfg.Protocol.Options().DrainTimeout)
	assert.Equal(t, mcp.SupportedProtocolVersions, cfg.Protocol.Versions)
}

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "nanomcp", cfg.Server.Name)
	assert.Equal(t, xlog.INFO, cfg.LogLevel())

	o := cfg.Options()
	assert.Equal(t, mcp.DefaultHandshakeTimeout, o.HandshakeTimeout)
	assert.Equal(t, mcp.DefaultCallTimeout, o.CallTimeout)
	assert.Zero(t, o.PageSize)
	assert.Zero(t, o.MaxConcurrentCalls)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load("testdata/missing.yaml")
	assert.Error(t, err)

	_, err = config.Load("testdata/bad_version.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol_version")

	_, err = config.Load("testdata/bad_values.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CallTimeoutMs")
	assert.Contains(t, err.Error(), "log_level")
}
