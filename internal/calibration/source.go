package calibration

import (
	"context"
	"fmt"

	"github.com/geomarker/anchor/assets"
	"github.com/geomarker/anchor/internal/config"
	"github.com/geomarker/anchor/pkg/core"
	"github.com/rs/zerolog"
)

// Source yields the full calibration table in one read.
type Source interface {
	Name() string
	Records(ctx context.Context) ([]core.CalibrationRecord, error)
}

// Load reads every record from src and builds the Store. Any failure aborts
// configuration; a partial table is never returned.
func Load(ctx context.Context, src Source) (*Store, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading calibration from %s: %w", src.Name(), err)
	}
	store, err := NewStore(records)
	if err != nil {
		return nil, fmt.Errorf("loading calibration from %s: %w", src.Name(), err)
	}
	return store, nil
}

// NewSource creates a calibration source based on configuration
func NewSource(cfg config.CalibrationConfig, log zerolog.Logger) (Source, error) {
	switch cfg.Source {
	case "embedded", "":
		return NewYAMLBytes("embedded", assets.CalibrationYAML), nil
	case "yaml":
		return NewYAMLFile(cfg.Path), nil
	case "sqlite":
		return NewSQLiteSource(cfg.Path, log), nil
	case "postgres":
		return NewPostgresSource(cfg.DSN, log), nil
	default:
		return nil, fmt.Errorf("unknown calibration source: %s", cfg.Source)
	}
}
