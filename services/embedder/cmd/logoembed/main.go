package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"logoembed/pkg/bus"
	"logoembed/pkg/metrics"
	gos3 "logoembed/pkg/s3"
	"logoembed/pkg/telemetry"
	"logoembed/services/embedder"
	"logoembed/services/embedder/internal/config"
)

const serviceName = "logoembed"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTelemetry, logger, err := telemetry.Init(ctx, serviceName, os.Stderr)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	a := newApp(env, logger, os.Stdout)
	cmdErr := newRootCommand(a).ExecuteContext(ctx)
	if err := a.flushMetrics(); err != nil {
		logger.Printf("WARN write metrics: %v", err)
	}
	return cmdErr
}

// app carries the settings and shared collaborators of one invocation.
type app struct {
	env     config.Config
	logger  *log.Logger
	metrics *metrics.Recorder
	stdout  io.Writer
}

func newApp(env config.Config, logger *log.Logger, stdout io.Writer) *app {
	return &app{
		env:     env,
		logger:  logger,
		metrics: metrics.New(),
		stdout:  stdout,
	}
}

func (a *app) flushMetrics() error {
	if a.env.MetricsFile == "" {
		return nil
	}
	return a.metrics.WriteTextfile(a.env.MetricsFile)
}

// baseConfig builds the shared embed settings. The returned func releases the
// NATS connection, if one was opened.
func (a *app) baseConfig(ctx context.Context, needS3 bool) (embedder.EmbedConfig, func(), error) {
	release := func() {}
	if err := a.env.Validate(); err != nil {
		return embedder.EmbedConfig{}, release, err
	}

	cfg := embedder.EmbedConfig{
		BackupDir: a.env.BackupDir,
		Subject:   a.env.NATS.Subject,
		Metrics:   a.metrics,
		Logger:    a.logger,
		Stdout:    a.stdout,
	}

	if needS3 {
		client, err := gos3.NewClientFromEnv(ctx)
		if err != nil {
			return cfg, release, fmt.Errorf("s3 client: %w", err)
		}
		cfg.S3 = client
	}

	if a.env.NATS.URL != "" {
		b, err := bus.New(a.env.NATS.URL)
		if err != nil {
			return cfg, release, fmt.Errorf("connect nats: %w", err)
		}
		cfg.Publisher = b
		release = b.Close
	}

	return cfg, release, nil
}

func (a *app) paths() (string, string) {
	return embedder.ResolvePath(a.env.Dir, a.env.Image), embedder.ResolvePath(a.env.Dir, a.env.ConfigPath)
}

func newRootCommand(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Embed an SVG logo into a JSON defaults file as a data URI",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEmbed(cmd.Context(), dryRun)
		},
	}

	bindPathFlags(cmd, a)
	bindEmbedFlags(cmd, a, &dryRun)
	cmd.PersistentFlags().StringVar(&a.env.MetricsFile, "metrics-file", a.env.MetricsFile, "Write run metrics to this node exporter textfile")
	cmd.PersistentFlags().StringVar(&a.env.NATS.URL, "nats-url", a.env.NATS.URL, "Publish update events to this NATS server")
	cmd.PersistentFlags().StringVar(&a.env.NATS.Subject, "nats-subject", a.env.NATS.Subject, "Subject for update events")

	cmd.AddCommand(newEmbedCommand(a))
	cmd.AddCommand(newVerifyCommand(a))
	cmd.AddCommand(newRunCommand(a))
	cmd.AddCommand(newRestoreCommand(a))
	return cmd
}

func bindPathFlags(cmd *cobra.Command, a *app) {
	cmd.Flags().StringVar(&a.env.Dir, "dir", a.env.Dir, "Directory relative paths are resolved against")
	cmd.Flags().StringVar(&a.env.Image, "image", a.env.Image, "SVG image path or s3://bucket/key")
	cmd.Flags().StringVar(&a.env.ConfigPath, "config", a.env.ConfigPath, "JSON defaults file to update")
}

func bindEmbedFlags(cmd *cobra.Command, a *app, dryRun *bool) {
	cmd.Flags().BoolVar(dryRun, "dry-run", false, "Print the updated document instead of writing it")
	cmd.Flags().StringVar(&a.env.BackupDir, "backup-dir", a.env.BackupDir, "Keep a zstd copy of the previous config in this directory")
}

func (a *app) runEmbed(ctx context.Context, dryRun bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	image, configPath := a.paths()

	cfg, release, err := a.baseConfig(ctx, gos3.IsURL(image))
	if err != nil {
		return err
	}
	defer release()

	cfg.ImagePath = image
	cfg.ConfigPath = configPath
	cfg.DryRun = dryRun
	_, err = embedder.Embed(ctx, cfg)
	return err
}

func newEmbedCommand(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Write the image's data URI into the config's logo field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEmbed(cmd.Context(), dryRun)
		},
	}

	bindPathFlags(cmd, a)
	bindEmbedFlags(cmd, a, &dryRun)
	return cmd
}

func newVerifyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Fail if the config's logo does not match the image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			image, configPath := a.paths()
			cfg := embedder.VerifyConfig{ImagePath: image, ConfigPath: configPath}
			if gos3.IsURL(image) {
				client, err := gos3.NewClientFromEnv(ctx)
				if err != nil {
					return fmt.Errorf("s3 client: %w", err)
				}
				cfg.S3 = client
			}
			if err := embedder.Verify(ctx, cfg); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s is up to date\n", configPath)
			return nil
		},
	}

	bindPathFlags(cmd, a)
	return cmd
}

func newRunCommand(a *app) *cobra.Command {
	var (
		jobFile string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every embed listed in a YAML job file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			jf, err := embedder.LoadJobFile(jobFile)
			if err != nil {
				return err
			}
			cfg, release, err := a.baseConfig(ctx, jf.UsesS3())
			if err != nil {
				return err
			}
			defer release()

			cfg.DryRun = dryRun
			results, err := embedder.RunJobs(ctx, jf, cfg)
			if err != nil {
				return err
			}
			for _, res := range results {
				a.logger.Printf("INFO %s <- %s (changed=%t)", res.ConfigPath, res.ImagePath, res.Changed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobFile, "file", "logoembed.yaml", "Job file to execute")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the updated documents instead of writing them")
	cmd.Flags().StringVar(&a.env.BackupDir, "backup-dir", a.env.BackupDir, "Keep a zstd copy of each previous config in this directory")
	return cmd
}

func newRestoreCommand(a *app) *cobra.Command {
	var backup string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a config from a zstd backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, configPath := a.paths()
			if err := embedder.RestoreBackup(backup, configPath); err != nil {
				return err
			}
			a.logger.Printf("INFO restored %s from %s", configPath, backup)
			return nil
		},
	}

	cmd.Flags().StringVar(&backup, "backup", "", "Backup file written by --backup-dir")
	cmd.Flags().StringVar(&a.env.Dir, "dir", a.env.Dir, "Directory relative paths are resolved against")
	cmd.Flags().StringVar(&a.env.ConfigPath, "config", a.env.ConfigPath, "JSON defaults file to restore")
	_ = cmd.MarkFlagRequired("backup")
	return cmd
}
