package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Escorpio024/scribe-ia-aurora/internal/archive"
	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/capture"
	"github.com/Escorpio024/scribe-ia-aurora/internal/collab"
	"github.com/Escorpio024/scribe-ia-aurora/internal/config"
	"github.com/Escorpio024/scribe-ia-aurora/internal/kv"
	"github.com/Escorpio024/scribe-ia-aurora/internal/metrics"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "scribe-ia-aurora"
	serviceVersion    = "1.0.0"
)

// app carries what every command needs once flags are parsed
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "scribe",
		Short: "Clinical consultation scribe",
		Long: `scribe - records medical consultations and turns them into structured records.

The service captures consultation audio (microphone or websocket), encodes
it as 16 kHz mono WAV, hands it to the transcription and generation
collaborators, and keeps the clinical record, suggestions and patient queue
of each consultation.

Configuration is read from a YAML file (default configs/config.yaml).
When the default file does not exist built-in defaults are used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "path to configuration file")

	root.AddCommand(
		newServeCmd(a),
		newRecordCmd(a),
		newSectionCmd(),
		newQueueCmd(a),
		newFinishCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// version needs no configuration
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, serviceVersion)
		},
	}
}

// load reads the configuration and builds the logger. A missing file is
// only an error when the path was given explicitly.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		explicit := cmd.Flags().Changed("config")
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = config.Default()
	}
	a.cfg = cfg
	a.logger = initLogger(cfg.Logging)
	return nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output io.Writer
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

// captureConfig turns the capture section into controller settings
func captureConfig(cfg config.CaptureConfig) (capture.Config, error) {
	resampler, err := audio.NewResampler(cfg.Resampler)
	if err != nil {
		return capture.Config{}, err
	}
	return capture.Config{
		TargetSampleRate: cfg.TargetSampleRate,
		MaxDuration:      cfg.GetMaxDuration(),
		Constraints:      capture.DefaultConstraints(),
		Resampler:        resampler,
	}, nil
}

// newCollabClient builds the collaborator client, or nil when no base URL
// is configured.
func (a *app) newCollabClient(m *metrics.Metrics) (*collab.Client, error) {
	up := a.cfg.Upstream
	if !up.Enabled() {
		return nil, nil
	}
	return collab.NewClient(collab.Config{
		BaseURL:       up.BaseURL,
		APIKey:        up.APIKey,
		Timeout:       up.GetTimeoutDuration(),
		MaxRetries:    up.MaxRetries,
		MaxConcurrent: up.MaxConcurrent,
		RetryBackoff:  up.GetRetryBackoffDuration(),
		UserAgent:     serviceName + "/" + serviceVersion,
	}, a.logger, m)
}

// openState opens the queue and session store
func (a *app) openState() (kv.Store, error) {
	switch a.cfg.State.Backend {
	case "badger":
		return kv.OpenBadger(kv.BadgerOptions{Dir: a.cfg.State.Dir, Logger: a.logger})
	default:
		a.logger.Warn("Using in-memory state; queue changes are lost when the command exits")
		return kv.NewMemory(), nil
	}
}

// openArchive opens the archive of finished consultations
func (a *app) openArchive(ctx context.Context) (*archive.Archive, error) {
	var store archive.Store
	switch a.cfg.Storage.Backend {
	case "s3":
		s3cfg := a.cfg.Storage.S3
		s, err := archive.OpenS3(ctx, archive.S3Options{
			Bucket:   s3cfg.Bucket,
			Prefix:   s3cfg.Prefix,
			Region:   s3cfg.Region,
			Endpoint: s3cfg.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		l, err := archive.NewLocal(a.cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		store = l
	}
	return archive.New(store, a.logger), nil
}

// readInput reads a file, or standard input when path is "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
