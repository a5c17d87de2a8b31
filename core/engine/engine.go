package engine

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/longkeyy/datax-synctrack/common/config"
	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/core/attempt"
	"github.com/longkeyy/datax-synctrack/core/statusstore"
	"go.uber.org/zap"
)

// Engine is stateless - just a namespace for execution functions
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Replay runs one attempt over the recorded connector output named by
// settings.Input and returns its summary. A missing destination file means
// nothing was acknowledged.
func (e *Engine) Replay(ctx context.Context, settings config.Settings) (*attempt.Summary, error) {
	if settings.Input.Source == "" {
		return nil, fmt.Errorf("input.source is required")
	}

	store, closeStore, err := statusstore.New(ctx, settings.StatusStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open status store: %w", err)
	}
	defer func() {
		if err := closeStore(context.WithoutCancel(ctx)); err != nil {
			logger.App().Warn("Failed to close status store", zap.Error(err))
		}
	}()

	source, closeSource, err := openInput(settings.Input.Source)
	if err != nil {
		return nil, err
	}
	defer closeSource()

	var destination protocol.MessageReader = protocol.NewSliceReader()
	if settings.Input.Destination != "" {
		reader, closeDestination, err := openInput(settings.Input.Destination)
		if err != nil {
			return nil, err
		}
		defer closeDestination()
		destination = reader
	}

	return attempt.New(settings, store).Run(ctx, source, destination)
}

func openInput(path string) (protocol.MessageReader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}
	reader, err := protocol.NewLineReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to read input %s: %w", path, err)
	}
	return reader, func() {
		if skipped := reader.Skipped(); skipped > 0 {
			logger.App().Debug("Skipped non-protocol lines",
				zap.String("path", path),
				zap.Int64("lines", skipped))
		}
		_ = reader.Close()
		_ = f.Close()
	}, nil
}

func Main(ver string) {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Attempt configuration file path (JSON or YAML)")
	flag.Parse()

	if configPath == "" {
		fmt.Println("Usage: synctrack -config <config-file>")
		os.Exit(1)
	}

	configuration, err := config.FromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse configuration file: %v\n", err)
		os.Exit(1)
	}
	settings, err := config.LoadSettings(configuration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&settings.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.App()
	appLogger.Info("synctrack starting",
		zap.String("version", ver),
		zap.String("config", configPath),
		zap.String("statusStore", settings.StatusStore.Type))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := NewEngine().Replay(ctx, settings)
	if summary != nil {
		out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(summary, "", "  ")
		if err != nil {
			appLogger.Error("Failed to encode summary", zap.Error(err))
		} else {
			fmt.Println(string(out))
		}
	}
	if runErr != nil {
		appLogger.Error("Replay failed", zap.Error(runErr))
		logger.Sync()
		os.Exit(1)
	}

	appLogger.Info("Replay completed successfully")
}
