package calibration

import (
	"context"
	"testing"

	"github.com/geomarker/anchor/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSource(t *testing.T) {
	tests := []struct {
		cfg  config.CalibrationConfig
		name string
	}{
		{config.CalibrationConfig{Source: "embedded"}, "yaml:embedded"},
		{config.CalibrationConfig{}, "yaml:embedded"},
		{config.CalibrationConfig{Source: "yaml", Path: "/etc/anchor/cal.yaml"}, "yaml:/etc/anchor/cal.yaml"},
		{config.CalibrationConfig{Source: "sqlite", Path: "cal.db"}, "sqlite:cal.db"},
		{config.CalibrationConfig{Source: "postgres", DSN: "host=db"}, "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.cfg, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.name, src.Name())
		})
	}
}

func TestNewSource_Unknown(t *testing.T) {
	_, err := NewSource(config.CalibrationConfig{Source: "csv"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown calibration source")
}

func TestLoad_Embedded(t *testing.T) {
	src, err := NewSource(config.CalibrationConfig{Source: "embedded"}, zerolog.Nop())
	require.NoError(t, err)

	store, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 63, store.Len())
}
