package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/plus3/ecsid/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the stress test and print a report",
	PreRunE: bindRunFlags,
	RunE:    runStress,
}

func init() {
	key := "frames"
	runCmd.Flags().Int(key, 0, "number of frames to run")
	key = "duration"
	runCmd.Flags().Duration(key, 0, "stop after this long even if frames remain")
	key = "workers"
	runCmd.Flags().Int(key, 0, "goroutines reserving entities concurrently")
	key = "reserve-per-frame"
	runCmd.Flags().Int(key, 0, "entities reserved per frame across all workers")
	key = "batch-size"
	runCmd.Flags().Uint32(key, 0, "largest batch reserved at once (1 = single reservations only)")
	key = "invalid-ratio"
	runCmd.Flags().Float64(key, 0, "share of flushed entities left without a location")
	key = "free-ratio"
	runCmd.Flags().Float64(key, 0, "share of live entities freed after each frame")
	key = "seed"
	runCmd.Flags().Uint64(key, 0, "random seed")
	key = "format"
	runCmd.Flags().String(key, "text", "report format (text, yaml)")
	key = "gc-pause-metrics"
	runCmd.Flags().Bool(key, false, "include GC pause metrics in the text report")
}

func bindRunFlags(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Root().PersistentFlags())
}

// loadConfig reads the config file and applies flags and environment
// variables that were set explicitly.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}

	s := &cfg.Stress
	if viper.IsSet("frames") {
		s.Frames = viper.GetInt("frames")
	}
	if viper.IsSet("duration") {
		s.Duration = viper.GetDuration("duration")
	}
	if viper.IsSet("workers") {
		s.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("reserve-per-frame") {
		s.ReservePerFrame = viper.GetInt("reserve-per-frame")
	}
	if viper.IsSet("batch-size") {
		s.BatchSize = viper.GetUint32("batch-size")
	}
	if viper.IsSet("invalid-ratio") {
		s.InvalidRatio = viper.GetFloat64("invalid-ratio")
	}
	if viper.IsSet("free-ratio") {
		s.FreeRatio = viper.GetFloat64("free-ratio")
	}
	if viper.IsSet("seed") {
		s.Seed = viper.GetUint64("seed")
	}
	if viper.IsSet("log-level") {
		cfg.Logging.Level = viper.GetString("log-level")
	}
	if viper.IsSet("log-format") {
		cfg.Logging.Format = viper.GetString("log-format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runStress(cmd *cobra.Command, _ []string) error {
	format := viper.GetString("format")
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unknown report format %q", format)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := &Report{
		Frames:          cfg.Stress.Frames,
		Duration:        cfg.Stress.Duration,
		Workers:         cfg.Stress.Workers,
		ReservePerFrame: cfg.Stress.ReservePerFrame,
		BatchSize:       cfg.Stress.BatchSize,
		GCPauseMetrics:  viper.GetBool("gc-pause-metrics"),
	}

	runner := newStressRunner(cfg.Stress, log)
	defer runner.Close()

	log.Info("starting stress test",
		zap.Int("frames", cfg.Stress.Frames),
		zap.Duration("duration", cfg.Stress.Duration),
		zap.Int("workers", cfg.Stress.Workers),
		zap.Int("reserve_per_frame", cfg.Stress.ReservePerFrame))

	runtime.ReadMemStats(&report.MemStatsStart)
	start := time.Now()

	completed, err := runner.Run(ctx)

	report.TotalTime = time.Since(start)
	report.CompletedFrames = completed
	runtime.ReadMemStats(&report.MemStatsEnd)
	runner.fill(report)

	if err != nil {
		log.Error("stress test failed", zap.Int("frame", completed), zap.Error(err))
		return err
	}
	log.Info("stress test complete", zap.Int("frames", completed), zap.Duration("elapsed", report.TotalTime))

	out := cmd.OutOrStdout()
	if format == "yaml" {
		return report.WriteYAML(out)
	}
	return report.Generate(out)
}
