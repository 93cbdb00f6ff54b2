package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Escorpio024/scribe-ia-aurora/internal/capture"
	"github.com/Escorpio024/scribe-ia-aurora/internal/mic"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

type recordOptions struct {
	out         string
	duration    time.Duration
	encounterID string
	upload      bool
}

func newRecordCmd(a *app) *cobra.Command {
	opts := &recordOptions{}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the default microphone into a WAV file",
		Long: `Record the default input device until the duration elapses or the
process is interrupted (Ctrl-C), then write a 16 kHz mono PCM-16 WAV file.
With --upload the file is also sent to the upload collaborator and the
transcript is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.record(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output WAV file (default consulta_<encounter>.wav)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "stop after this long (0 waits for Ctrl-C)")
	cmd.Flags().StringVar(&opts.encounterID, "encounter", "", "encounter id (generated when empty)")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "upload the recording and print the transcript")
	return cmd
}

func (a *app) record(cmd *cobra.Command, opts *recordOptions) error {
	captureCfg, err := captureConfig(a.cfg.Capture)
	if err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	encounterID := record.EnsureEncounterID(opts.encounterID, time.Now())
	if opts.out == "" {
		opts.out = fmt.Sprintf("consulta_%s.wav", encounterID)
	}

	device := mic.New(a.cfg.Capture.DeviceSampleRate, a.cfg.Capture.FramesPerBuffer, a.logger)
	controller := capture.NewController(device, captureCfg, a.logger, nil)
	defer controller.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := controller.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Recording %s, press Ctrl-C to stop\n", encounterID)

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	<-ctx.Done()

	encoded, err := controller.Stop()
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.out, encoded.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.out, err)
	}
	a.logger.Info("Recording saved",
		slog.String("file", opts.out),
		slog.Duration("duration", encoded.Duration()),
		slog.Int("bytes", encoded.Len()),
	)

	if !opts.upload {
		return nil
	}

	client, err := a.newCollabClient(nil)
	if err != nil {
		return fmt.Errorf("failed to create collaborator client: %w", err)
	}
	if client == nil {
		return errors.New("upload requested but upstream.base_url is not configured")
	}
	defer client.Close()

	// The interrupt that ended the recording must not cancel the upload
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), a.cfg.Upstream.GetTimeoutDuration())
	defer cancel()

	res, err := client.Upload(uploadCtx, encounterID, encoded)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}
