package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/geomarker/anchor/internal/calibration"
	"github.com/geomarker/anchor/internal/config"
	"github.com/geomarker/anchor/internal/dispatcher"
	"github.com/geomarker/anchor/internal/engine"
	"github.com/geomarker/anchor/internal/logging"
	intOtel "github.com/geomarker/anchor/internal/otel"
	"github.com/geomarker/anchor/internal/replay"
	"github.com/geomarker/anchor/internal/trace"
	"github.com/geomarker/anchor/pkg/core"
	"github.com/rs/zerolog"
)

// BuildVersion can be set at build time via ldflags
var (
	BuildVersion string = "0.0.1"
	BuildDate    string = "unknown"

	ExtensionName string = "anchor_replay"
)

var (
	SessionStartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager = logging.NewSlogManager()

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = slog.Default()

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// ZLog is used by the calibration loaders and the dispatcher
	ZLog zerolog.Logger

	// Engine is the running anchor engine, read by the frame log context
	Engine *engine.Engine
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s replay <recording.jsonl>   run a recorded session through the engine\n", ExtensionName)
	fmt.Fprintf(os.Stderr, "  %s seed <calibration.db>      write the embedded calibration table to SQLite\n", ExtensionName)
	fmt.Fprintf(os.Stderr, "  %s version\n", ExtensionName)
	fmt.Fprintf(os.Stderr, "config is read from %s in $ANCHOR_CONFIG_DIR or the working directory\n", config.ConfigFileName)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch strings.ToLower(args[0]) {
	case "version":
		fmt.Printf("%s %s (%s)\n", ExtensionName, BuildVersion, BuildDate)
		return
	case "replay":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = runReplay(ctx, args[1])
	case "seed":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = runSeed(ctx, args[1])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		Logger.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func configDir() string {
	if dir := os.Getenv("ANCHOR_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "."
}

// setup loads config and brings up logging. The returned func closes the log
// file and flushes OTel.
func setup() (func(), error) {
	if err := config.Load(configDir()); err != nil {
		config.LoadDefaults()
		fmt.Fprintf(os.Stderr, "using default configuration: %v\n", err)
	}

	logFile, err := logging.OpenSessionLog(config.GetString("logsDir"), ExtensionName, SessionStartTime)
	if err != nil {
		return nil, err
	}

	var otelWriter io.Writer
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		otelWriter = logFile
	}
	OTelProvider, err = intOtel.New(intOtel.FromConfig(otelCfg, otelWriter))
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize OTel: %w", err)
	}

	level := config.GetString("logLevel")
	SlogManager.Setup(logFile, level, OTelProvider.LoggerProvider(), logging.FrameContext(func() uint64 {
		if Engine == nil {
			return 0
		}
		return Engine.Frame()
	}))
	Logger = SlogManager.Logger()
	ZLog = logging.NewZerolog(logFile, level, ExtensionName)

	Logger.Info("Starting up", "version", BuildVersion, "config", filepath.Join(configDir(), config.ConfigFileName))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
		}
		logFile.Close()
	}, nil
}

func loadCalibration(ctx context.Context) (*calibration.Store, error) {
	src, err := calibration.NewSource(config.GetCalibrationConfig(), ZLog)
	if err != nil {
		return nil, err
	}
	store, err := calibration.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	Logger.Info("Calibration loaded", "source", src.Name(), "markers", store.Len())
	return store, nil
}

func runReplay(ctx context.Context, path string) error {
	teardown, err := setup()
	if err != nil {
		return err
	}
	defer teardown()

	engineCfg, err := config.GetEngineConfig()
	if err != nil {
		return err
	}

	store, err := loadCalibration(ctx)
	if err != nil {
		return err
	}

	kv := logging.NewKVLogger(ZLog)
	d, err := dispatcher.New(kv)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	recorder := trace.New(config.GetTraceConfig(), strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), SessionStartTime, store)

	var session *replay.Session
	Engine, err = engine.New(store,
		engine.WithThreshold(engineCfg.Threshold),
		engine.WithLogger(Logger),
		engine.WithMeter(OTelProvider.Meter(ExtensionName)),
		engine.WithNotifier(func(n core.Notice) { session.Notify(n) }),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	session = replay.NewSession(Engine, d, recorder, kv)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	start := time.Now()
	stats, runErr := session.Run(ctx, f)
	Logger.Info("Replay finished",
		"lines", stats.Lines,
		"frames", stats.Frames,
		"gated", stats.Gated,
		"errors", stats.Errors,
		"notices", stats.Notices,
		"anchors", len(Engine.Anchors()),
		"duration", time.Since(start),
	)

	out, err := recorder.Export()
	if err != nil {
		return fmt.Errorf("exporting trace: %w", err)
	}
	Logger.Info("Trace written", "path", out)
	fmt.Println(out)

	return runErr
}

func runSeed(ctx context.Context, dbPath string) error {
	teardown, err := setup()
	if err != nil {
		return err
	}
	defer teardown()

	store, err := loadCalibration(ctx)
	if err != nil {
		return err
	}

	dst := calibration.NewSQLiteSource(dbPath, ZLog)
	if err := dst.Seed(ctx, store.Records()); err != nil {
		return fmt.Errorf("seeding %s: %w", dbPath, err)
	}
	Logger.Info("Calibration seeded", "path", dbPath, "markers", store.Len())
	return nil
}
