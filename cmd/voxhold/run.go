package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/voxhold/internal/alias"
	"github.com/chaz8081/voxhold/internal/audio"
	"github.com/chaz8081/voxhold/internal/config"
	"github.com/chaz8081/voxhold/internal/hotkey"
	"github.com/chaz8081/voxhold/internal/inject"
	"github.com/chaz8081/voxhold/internal/recording"
	"github.com/chaz8081/voxhold/internal/status"
	"github.com/chaz8081/voxhold/internal/transcribe"
	"github.com/chaz8081/voxhold/internal/trigger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dictation daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		if path == "" {
			logger.Info("no config file found, using defaults")
		} else {
			logger.Info("config loaded", "path", path)
		}

		printBanner(cmd.OutOrStdout(), cfg)
		return runDaemon(cfg, logger)
	},
}

func runDaemon(cfg *config.Config, logger *slog.Logger) error {
	backend, err := audio.NewMalgoBackend(logger)
	if err != nil {
		return fmt.Errorf("%w\n\nEnsure microphone access is granted in System Settings > Privacy & Security > Microphone", err)
	}
	defer backend.Close()

	dispatcher := transcribe.NewDispatcher(transcribe.WhisperLoader, transcribeSpecs(cfg), logger)
	defer dispatcher.Close()

	// The dispatcher logs each load failure and caches it for the profile.
	start := time.Now()
	failed := dispatcher.Preload()
	logger.Debug("preload finished", "failed", len(failed), "elapsed", time.Since(start).Round(time.Millisecond))

	injector, err := inject.NewInjector(inject.Method(cfg.Inject.Method))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var archive trigger.Archiver
	if cfg.Recordings.Enabled {
		a := recording.NewArchive(cfg.Recordings.Dir, cfg.Recordings.RetentionDays, cfg.Recordings.MaxCount, logger)
		if n, err := a.Cleanup(); err != nil {
			logger.Warn("recording cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("removed old recordings", "count", n)
		}
		if hours := cfg.Recordings.CleanupIntervalHours; hours > 0 {
			go a.RunCleanup(ctx, time.Duration(hours)*time.Hour)
		}
		archive = a
	}

	stats := status.NewStats()
	coord := trigger.NewCoordinator(trigger.Options{
		Transcriber: dispatcher,
		Deliverer:   injector,
		Converter:   audio.Converter{Quality: audio.Quality(cfg.Audio.ResampleQuality)},
		Aliases:     aliasTable(cfg.Aliases),
		Sink:        status.Multi(status.NewLogSink(logger), stats),
		Archive:     archive,
		MaxHold:     cfg.Audio.MaxRecording(),
		Logger:      logger,
	})

	format := audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}
	var bindings []hotkey.Binding
	for _, p := range cfg.Profiles {
		combo, err := p.Combo()
		if err != nil {
			return fmt.Errorf("profile %q: %w", p.Name, err)
		}
		channel, err := audio.NewChannel(backend, format, cfg.Audio.PeriodFrames, cfg.Audio.MaxRecording())
		if err != nil {
			return fmt.Errorf("profile %q: %w", p.Name, err)
		}
		if err := coord.Register(trigger.Profile{Name: p.Name, Combo: combo}, channel); err != nil {
			if errors.Is(err, trigger.ErrDuplicateCombo) || errors.Is(err, trigger.ErrOverlappingCombo) {
				logger.Error("profile disabled", "profile", p.Name, "error", err)
				continue
			}
			return err
		}
		bindings = append(bindings, hotkey.Binding{Profile: p.Name, Combo: combo})
		logger.Info("profile ready", "profile", p.Name, "hotkey", combo.String(), "model", p.ModelPath)
	}
	if len(bindings) == 0 {
		return errors.New("no usable profiles")
	}

	listener := hotkey.NewListener(bindings)
	go listener.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	logger.Info("ready, hold a hotkey to dictate, Ctrl+C to quit")
	if err := coord.Run(ctx, listener.Events()); err != nil {
		return err
	}

	coord.Close()
	logSummary(logger, stats.Snapshot())
	dispatcher.Close()
	backend.Close()

	// Exit directly to avoid gohook's C cleanup crash. The OS reclaims the
	// event hook on process exit.
	os.Exit(0)
	return nil
}

func transcribeSpecs(cfg *config.Config) []transcribe.Spec {
	specs := make([]transcribe.Spec, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		specs = append(specs, transcribe.Spec{
			Profile:   p.Name,
			ModelPath: p.ModelPath,
			Preload:   p.Preload,
			Params: transcribe.Params{
				Threads:  p.Threads,
				BeamSize: p.BeamSize,
				Language: p.Language,
			},
		})
	}
	return specs
}

func aliasTable(a config.AliasConfig) alias.Table {
	t := alias.Table{Enabled: a.Enabled, Threshold: a.Threshold}
	for _, e := range a.Entries {
		t.Entries = append(t.Entries, alias.Entry{Phrase: e.Phrase, Replacement: e.Replacement})
	}
	return t
}

func logSummary(logger *slog.Logger, totals map[string]status.Totals) {
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := totals[name]
		logger.Info("session summary", "profile", name,
			"cycles", t.Cycles, "delivered", t.Delivered, "errors", t.Errors,
			"warnings", t.Warnings, "dropped", t.Dropped)
	}
}
