package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port    int      `env:"TEST_CFG_PORT" envDefault:"8080"`
	Brokers []string `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

type validatedConfig struct {
	Backend string `env:"TEST_CFG_BACKEND" envDefault:"postgres"`
}

func (c *validatedConfig) Validate() error {
	if c.Backend != "postgres" && c.Backend != "memory" {
		return errors.New("unsupported backend " + c.Backend)
	}
	return nil
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)

	t.Setenv("TEST_CFG_PORT", "9011")
	t.Setenv("TEST_CFG_BROKERS", "k1:9092,k2:9092")
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 9011, cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")
	var cfg testConfig
	assert.ErrorContains(t, Load(&cfg), "parse config")
}

func TestLoad_RunsValidate(t *testing.T) {
	var cfg validatedConfig
	require.NoError(t, Load(&cfg))

	t.Setenv("TEST_CFG_BACKEND", "sqlite")
	assert.ErrorContains(t, Load(&cfg), "unsupported backend sqlite")
}
