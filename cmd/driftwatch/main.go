package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/httpapi"
	"github.com/driftwatch/driftwatch/internal/orchestrator"
	"github.com/driftwatch/driftwatch/internal/runlog"
	"github.com/driftwatch/driftwatch/internal/watchfs"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "driftwatch",
		Short:         "Change-triggered reindexing orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
			if configPath == "" {
				configPath = os.Getenv("DRIFTWATCH_CONFIG")
			}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to driftwatch.json")
	root.AddCommand(serveCmd(), runCmd(), targetsCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("driftwatch: %v", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch targets and serve the webhook/status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	logger := log.New(os.Stderr, "driftwatch ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	registry, err := orchestrator.NewRegistry(cfg.Targets)
	if err != nil {
		return err
	}
	recorder, err := runlog.BuildRecorderFromDSN(cfg.RunLogDSN)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer recorder.Close()
	}

	opts := orchestrator.Options{Registry: registry, Logger: logger, Tick: cfg.Tick}
	if recorder != nil {
		opts.Recorder = recorder
	}
	orch, err := orchestrator.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return orch.Run(gctx)
	})
	for _, target := range registry.All() {
		if target.Source != orchestrator.SourceFilesystem {
			continue
		}
		watcher, err := watchfs.New(target, orch, logger)
		if err != nil {
			stop()
			_ = group.Wait()
			return err
		}
		group.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.NewServer(orch, httpapi.ServerConfig{WebhookSecret: cfg.WebhookSecret}, logger),
	}
	group.Go(func() error {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Printf("shut down cleanly")
	return nil
}

func runCmd() *cobra.Command {
	var targetID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one target's pipeline once and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			registry, err := orchestrator.NewRegistry(cfg.Targets)
			if err != nil {
				return err
			}
			target, ok := registry.Get(targetID)
			if !ok {
				return fmt.Errorf("%w: %s", orchestrator.ErrUnknownTarget, targetID)
			}

			run, err := orchestrator.NewPipelineRunner().Run(cmd.Context(), target, nil)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(run); err != nil {
				return err
			}
			if run.Outcome != orchestrator.RunSuccess {
				return fmt.Errorf("pipeline %s for target %s", run.Outcome, target.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetID, "target", "t", "", "target id to run")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List configured targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			registry, err := orchestrator.NewRegistry(cfg.Targets)
			if err != nil {
				return err
			}
			for _, target := range registry.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\twindow=%s\tstages=%d\n",
					target.ID, target.Source, target.Locator(), target.DebounceWindow, len(target.Stages))
			}
			return nil
		},
	}
}
