// Command runner drives an executor loop for one task kind — or, with
// --type all, one loop per kind concurrently — against one queue database,
// until its process is asked to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hetangai/mediaqueue/internal/taskqueue/executor"
	"github.com/hetangai/mediaqueue/internal/taskqueue/executor/audioexec"
	"github.com/hetangai/mediaqueue/internal/taskqueue/executor/imageexec"
	"github.com/hetangai/mediaqueue/internal/taskqueue/executor/videoexec"
	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/settings"
	"github.com/hetangai/mediaqueue/internal/taskqueue/store"

	xglog "github.com/hetangai/mediaqueue/internal/log"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	dbPath := flag.String("db", "", "path to the task queue sqlite database")
	taskType := flag.String("type", "", "task kind to execute: image, video, audio, or all")
	apiURL := flag.String("api-url", "", "fallback generation API URL, used when the settings file doesn't resolve one")
	apiKey := flag.String("api-key", "", "fallback generation API key")
	modelName := flag.String("model", "", "fallback model name")
	settingsFile := flag.String("settings", "", "path to the hosted/custom settings JSON file, reloaded on every claim")
	workerID := flag.String("worker-id", "", "worker identity; defaults to host-pid-random")
	heartbeat := flag.Duration("heartbeat", 30*time.Second, "lease heartbeat interval")
	lockTimeout := flag.Duration("lock-timeout", 0, "lease staleness threshold; kind-specific default if unset")
	idleSleep := flag.Duration("idle-sleep", time.Second, "sleep duration when no task is claimable")
	concurrency := flag.Int("concurrency", 1, "number of claim/execute lanes to run in this process")
	logLevel := flag.String("log-level", "info", "log level")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9091 (disabled if empty)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("runner %s (commit %s)\n", version, commit)
		return 0
	}

	xglog.Configure(xglog.Config{Level: *logLevel, Service: "mediaqueue-runner", Version: version})
	logger := xglog.WithComponent("runner")

	all := *taskType == kindAll
	kind := model.Kind(*taskType)
	if !all && !kind.Valid() {
		logger.Error().Str("type", *taskType).Msg("unknown task type, expected image, video, audio, or all")
		return 1
	}
	if *dbPath == "" {
		logger.Error().Msg("--db is required")
		return 1
	}
	if _, err := os.Stat(*dbPath); err != nil {
		logger.Error().Err(err).Str("db", *dbPath).Msg("task queue database file does not exist")
		return 1
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open task queue database")
		return 1
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings.WatchForObservability(ctx, *settingsFile)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn().Err(err).Msg("metrics server stopped unexpectedly")
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		logger.Info().Str("addr", *metricsAddr).Msg("metrics endpoint listening")
	}

	fallback := settings.Resolved{APIURL: *apiURL, APIKey: *apiKey, Model: *modelName}
	baseCfg := executor.Config{
		WorkerID:          *workerID,
		HeartbeatInterval: *heartbeat,
		LockTimeout:       *lockTimeout,
		IdleSleep:         *idleSleep,
		Concurrency:       *concurrency,
	}

	if all {
		g, ctx := errgroup.WithContext(ctx)
		for _, k := range model.Kinds {
			k := k
			g.Go(func() error {
				runKind(ctx, k, st, kindCfg(baseCfg, *workerID, k), fallback, *settingsFile, logger)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		runKind(ctx, kind, st, kindCfg(baseCfg, *workerID, kind), fallback, *settingsFile, logger)
	}

	logger.Info().Msg("runner stopped")
	return 0
}

// kindAll is the --type value that fans out an executor for every kind in
// this process, mirroring the original runner's threaded "all" mode.
const kindAll = "all"

// kindCfg suffixes an explicit worker-id with the kind so that "all" mode
// doesn't run three executors under one identical lease identity; an
// auto-generated worker-id is already unique per Config and is left alone.
func kindCfg(cfg executor.Config, explicitWorkerID string, kind model.Kind) executor.Config {
	if explicitWorkerID != "" {
		cfg.WorkerID = fmt.Sprintf("%s-%s", explicitWorkerID, kind)
	}
	return cfg
}

// runKind builds the Backend for one kind and runs its executor loop until
// ctx is canceled.
func runKind(ctx context.Context, kind model.Kind, st *store.Store, cfg executor.Config, fallback settings.Resolved, settingsFile string, logger zerolog.Logger) {
	switch kind {
	case model.KindImage:
		if cfg.LockTimeout == 0 {
			cfg.LockTimeout = 60 * time.Second
		}
		be := &imageexec.Backend{SettingsPath: settingsFile, Fallback: fallback}
		exec := executor.New(model.KindImage, st, st.GetImageTask, be, cfg)
		logger.Info().Str("worker_id", exec.WorkerID()).Msg("image executor starting")
		exec.RunLoop(ctx)
	case model.KindVideo:
		if cfg.LockTimeout == 0 {
			cfg.LockTimeout = 120 * time.Second
		}
		be := &videoexec.Backend{SettingsPath: settingsFile, Fallback: fallback}
		exec := executor.New(model.KindVideo, st, st.GetVideoTask, be, cfg)
		logger.Info().Str("worker_id", exec.WorkerID()).Msg("video executor starting")
		exec.RunLoop(ctx)
	case model.KindAudio:
		if cfg.LockTimeout == 0 {
			cfg.LockTimeout = 60 * time.Second
		}
		be := &audioexec.Backend{SettingsPath: settingsFile, Fallback: fallback}
		exec := executor.New(model.KindAudio, st, st.GetAudioTask, be, cfg)
		logger.Info().Str("worker_id", exec.WorkerID()).Msg("audio executor starting")
		exec.RunLoop(ctx)
	}
}
