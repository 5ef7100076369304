package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	odindata "github.com/dw96/odin-data"
	"github.com/dw96/odin-data/internal/adapters/httpctl"
	"github.com/dw96/odin-data/internal/config"
	"github.com/dw96/odin-data/pkg/log"
)

var exampleUsage = strings.TrimSpace(`
  frameprocessor --config /etc/odin-data/config.toml
  frameprocessor --ctl-addr 127.0.0.1:8888 --log-level debug
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := config.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:     "frameprocessor",
		Short:   "Receive, process and write detector frames through a plugin pipeline",
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = config.DefaultConfigPath()
			}

			// Precedence: flags over environment over file.
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && config.FileExists(cfgFile) {
				fc, err := config.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := config.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			if err := config.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := log.NewConsoleAdapter(cfg.LogLevel)
			if err != nil {
				return err
			}

			fp, err := odindata.New(cfg, odindata.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("create frame processor: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Runtime reloads re-deliver the file's configure documents.
			// Structural sections are applied once at startup only.
			if cfgFile != "" && config.FileExists(cfgFile) {
				watcher := config.NewWatcher(cfgFile, func(next config.Config) {
					if err := fp.ApplyParams(next.Params); err != nil {
						logger.Error("apply reloaded parameters failed", log.Err(err))
					}
				}, logger)
				go watcher.Run(ctx)
			}

			ctl := httpctl.New(cfg.CtlAddr, fp.Controller(), logger)
			serveErr := make(chan error, 1)
			go func() { serveErr <- ctl.ListenAndServe() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigCh:
				logger.Info("received signal, stopping")
			case <-fp.ShutdownRequested():
				logger.Info("shutdown requested over control channel")
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("control server: %w", err)
				}
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			if err := ctl.Shutdown(shutdownCtx); err != nil {
				logger.Error("control server shutdown failed", log.Err(err))
			}
			if err := fp.Stop(); err != nil {
				return fmt.Errorf("stop frame processor: %w", err)
			}
			return nil
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.odin-data/config.toml)")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	root.Flags().StringVar(&cfg.CtlAddr, "ctl-addr", cfg.CtlAddr, "listen address for the control API")
	root.Flags().IntVar(&cfg.IngestQueueDepth, "queue-depth", cfg.IngestQueueDepth, "ingest queue depth in frames")
	root.Flags().Int64Var(&cfg.PoolLimitBytes, "pool-limit", cfg.PoolLimitBytes, "block pool byte limit (0 for unlimited)")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "grace period for control server shutdown")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "frameprocessor: %v\n", err)
		os.Exit(1)
	}
}
