package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"traind/internal/common/fsutil"
	"traind/internal/config"
	"traind/internal/controller"
	"traind/internal/emitter"
	"traind/internal/engine/ultra"
	"traind/internal/metrics"
)

var version = "dev"

// exit codes for CLI-level failures, before a run starts. The controller
// owns the codes for anything after that.
const exitUsage = 2

func execute(args []string) int {
	exitCode := 0
	root := newRootCmd(&exitCode)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "traind:", err)
		return exitUsage
	}
	return exitCode
}

func newRootCmd(exitCode *int) *cobra.Command {
	var (
		flagCfg config.Config
		cfgPath string
	)
	cmd := &cobra.Command{
		Use:           "traind",
		Short:         "Train a detection model, reporting progress as NDJSON events on stdout",
		Long:          "traind drives an external training run and reports its lifecycle\n(initialization, per-epoch and per-batch progress, checkpoints, completion\nor failure) as one self-contained JSON event per line on stdout, for a\nsupervising process to consume.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, flagCfg, cfgPath)
			if err != nil {
				return err
			}
			*exitCode = runTraining(cmd, cfg)
			return nil
		},
	}

	def := config.Default()
	cmd.Flags().StringVar(&flagCfg.Model, "model", def.Model, "Model variant: "+strings.Join(config.Variants, "|"))
	cmd.Flags().StringVar(&flagCfg.Dataset, "dataset", def.Dataset, "Dataset name or path to data.yaml")
	cmd.Flags().IntVar(&flagCfg.Epochs, "epochs", def.Epochs, "Number of epochs")
	cmd.Flags().IntVar(&flagCfg.BatchSize, "batch-size", def.BatchSize, "Batch size")
	cmd.Flags().IntVar(&flagCfg.ImageSize, "image-size", def.ImageSize, "Image size")
	cmd.Flags().Float64Var(&flagCfg.LearningRate, "learning-rate", def.LearningRate, "Learning rate")
	cmd.Flags().StringVar(&flagCfg.OutputDir, "output-dir", def.OutputDir, "Output directory for run artifacts")
	cmd.Flags().BoolVar(&flagCfg.Resume, "resume", false, "Resume training from last checkpoint")
	cmd.Flags().StringVar(&flagCfg.Device, "device", def.Device, "Device (mps for Mac GPU, cpu, or cuda:0)")
	cmd.Flags().IntVar(&flagCfg.Cadence, "cadence", def.Cadence, "Emit batch progress every Nth batch")
	cmd.Flags().StringVar(&flagCfg.MetricsAddr, "metrics-addr", "", "Optional Prometheus listen address, e.g. :9090 (off when empty)")
	cmd.Flags().StringVar(&flagCfg.LogLevel, "log-level", def.LogLevel, "Diagnostic log level on stderr: debug|info|warn|error")
	cmd.Flags().StringVar(&cfgPath, "config", "", "Optional config file (.yaml, .json or .toml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the traind version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "traind", version)
		},
	})
	return cmd
}

// resolveConfig merges the four configuration layers, lowest precedence
// first: defaults, config file, TRAIND_* environment, explicit flags.
func resolveConfig(cmd *cobra.Command, flagCfg config.Config, cfgPath string) (config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		fileCfg, err := config.Load(cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = config.Merge(cfg, fileCfg)
	}
	cfg = config.Merge(cfg, configFromEnv())
	cfg = applyChangedFlags(cmd, cfg, flagCfg)

	out, err := fsutil.ExpandHome(cfg.OutputDir)
	if err != nil {
		return cfg, err
	}
	cfg.OutputDir = out

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyChangedFlags overlays only the flags the user actually set, so a flag
// left at its default never shadows a file or env value.
func applyChangedFlags(cmd *cobra.Command, cfg, flagCfg config.Config) config.Config {
	set := func(name string, fn func()) {
		if cmd.Flags().Changed(name) {
			fn()
		}
	}
	set("model", func() { cfg.Model = flagCfg.Model })
	set("dataset", func() { cfg.Dataset = flagCfg.Dataset })
	set("epochs", func() { cfg.Epochs = flagCfg.Epochs })
	set("batch-size", func() { cfg.BatchSize = flagCfg.BatchSize })
	set("image-size", func() { cfg.ImageSize = flagCfg.ImageSize })
	set("learning-rate", func() { cfg.LearningRate = flagCfg.LearningRate })
	set("output-dir", func() { cfg.OutputDir = flagCfg.OutputDir })
	set("resume", func() { cfg.Resume = flagCfg.Resume })
	set("device", func() { cfg.Device = flagCfg.Device })
	set("cadence", func() { cfg.Cadence = flagCfg.Cadence })
	set("metrics-addr", func() { cfg.MetricsAddr = flagCfg.MetricsAddr })
	set("log-level", func() { cfg.LogLevel = flagCfg.LogLevel })
	return cfg
}

func runTraining(cmd *cobra.Command, cfg config.Config) int {
	logger := newLogger(cfg.LogLevel)

	// SIGINT/SIGTERM interrupt the blocking train call; interruption is a
	// normal stop, not a failure.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, logger)
	}

	// stdout carries the event stream and nothing else
	em := metrics.Instrument(emitter.NewStream(cmd.OutOrStdout()))

	ctrl := controller.New(controller.Options{
		Config: controller.Config{
			Variant:      cfg.Model,
			Dataset:      cfg.Dataset,
			Epochs:       cfg.Epochs,
			BatchSize:    cfg.BatchSize,
			ImageSize:    cfg.ImageSize,
			LearningRate: cfg.LearningRate,
			OutputDir:    cfg.OutputDir,
			Resume:       cfg.Resume,
			Device:       cfg.Device,
			Cadence:      cfg.Cadence,
		},
		Emitter:   em,
		Available: ultra.Available,
		NewEngine: ultra.New,
		Logger:    logger,
	})
	return ctrl.Run(ctx)
}

func newLogger(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error", "err":
		lvl = zerolog.ErrorLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
