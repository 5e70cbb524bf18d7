package calibration

import (
	"context"
	"fmt"

	"github.com/geomarker/anchor/pkg/core"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MarkerCalibration is the SQL row layout of one calibration record.
type MarkerCalibration struct {
	MarkerID  int     `gorm:"primaryKey;autoIncrement:false;column:marker_id"`
	H00       float64 `gorm:"column:h00;not null"`
	H01       float64 `gorm:"column:h01;not null"`
	H02       float64 `gorm:"column:h02;not null"`
	H10       float64 `gorm:"column:h10;not null"`
	H11       float64 `gorm:"column:h11;not null"`
	H12       float64 `gorm:"column:h12;not null"`
	H20       float64 `gorm:"column:h20;not null"`
	H21       float64 `gorm:"column:h21;not null"`
	H22       float64 `gorm:"column:h22;not null"`
	TargetLat float64 `gorm:"column:target_lat;not null"`
	TargetLon float64 `gorm:"column:target_lon;not null"`
}

// TableName pins the table name regardless of GORM naming strategy.
func (MarkerCalibration) TableName() string {
	return "marker_calibrations"
}

func (m MarkerCalibration) record() core.CalibrationRecord {
	return core.CalibrationRecord{
		MarkerID: m.MarkerID,
		Projection: [3][3]float64{
			{m.H00, m.H01, m.H02},
			{m.H10, m.H11, m.H12},
			{m.H20, m.H21, m.H22},
		},
		Target: core.Coordinate{Lat: m.TargetLat, Lon: m.TargetLon},
	}
}

func rowFromRecord(rec core.CalibrationRecord) MarkerCalibration {
	h := rec.Projection
	return MarkerCalibration{
		MarkerID:  rec.MarkerID,
		H00:       h[0][0],
		H01:       h[0][1],
		H02:       h[0][2],
		H10:       h[1][0],
		H11:       h[1][1],
		H12:       h[1][2],
		H20:       h[2][0],
		H21:       h[2][1],
		H22:       h[2][2],
		TargetLat: rec.Target.Lat,
		TargetLon: rec.Target.Lon,
	}
}

// SQLSource reads the calibration table through GORM.
type SQLSource struct {
	name      string
	dialector gorm.Dialector
	log       zerolog.Logger
}

// NewSQLiteSource reads from a SQLite database file.
func NewSQLiteSource(path string, log zerolog.Logger) *SQLSource {
	return &SQLSource{name: "sqlite:" + path, dialector: sqlite.Open(path), log: log}
}

// NewPostgresSource reads from a PostgreSQL database.
func NewPostgresSource(dsn string, log zerolog.Logger) *SQLSource {
	return &SQLSource{
		name: "postgres",
		dialector: postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}),
		log: log,
	}
}

// Name identifies the source in errors and logs.
func (s *SQLSource) Name() string {
	return s.name
}

// Records reads every row ordered by marker id.
func (s *SQLSource) Records(ctx context.Context) ([]core.CalibrationRecord, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer closeDB(db)

	var rows []MarkerCalibration
	if err := db.WithContext(ctx).Order("marker_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying %s: %w", MarkerCalibration{}.TableName(), err)
	}
	s.log.Debug().Str("source", s.name).Int("rows", len(rows)).Msg("Read calibration rows")

	records := make([]core.CalibrationRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// Seed creates the calibration table if needed and writes records into it,
// replacing rows with the same marker id. Used by tooling and tests.
func (s *SQLSource) Seed(ctx context.Context, records []core.CalibrationRecord) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer closeDB(db)

	if err := db.AutoMigrate(&MarkerCalibration{}); err != nil {
		return fmt.Errorf("migrating %s: %w", MarkerCalibration{}.TableName(), err)
	}
	rows := make([]MarkerCalibration, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rowFromRecord(rec))
	}
	if len(rows) == 0 {
		return nil
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Save(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("seeding %s: %w", MarkerCalibration{}.TableName(), err)
	}
	s.log.Info().Str("source", s.name).Int("rows", len(rows)).Msg("Seeded calibration table")
	return nil
}

func (s *SQLSource) open() (*gorm.DB, error) {
	db, err := gorm.Open(s.dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		s.log.Error().Err(err).Str("source", s.name).Msg("Failed to open calibration database")
		return nil, fmt.Errorf("opening %s: %w", s.name, err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
