package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/colinzhu/limit-monitoring-sub001/internal/config"
)

func TestLoad_HTTPPortAcceptsBarePortOrAddr(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	cfg := config.Load()
	assert.Equal(t, ":9090", cfg.HTTPAddr)

	t.Setenv("HTTP_PORT", ":9091")
	cfg = config.Load()
	assert.Equal(t, ":9091", cfg.HTTPAddr)
}

func TestLoad_HTTPPortDefault(t *testing.T) {
	os.Unsetenv("HTTP_PORT")
	cfg := config.Load()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}
