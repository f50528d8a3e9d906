package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"cpjudge/internal/api"
	"cpjudge/internal/datapack"
	"cpjudge/internal/frontend"
	"cpjudge/internal/judge/compile"
	"cpjudge/internal/judge/pipeline"
	"cpjudge/internal/judge/queue"
	"cpjudge/internal/judge/sandbox"
	"cpjudge/internal/judge/taskinfo"
	"cpjudge/internal/judge/worker"
	"cpjudge/internal/metrics"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "config.json"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	if err := os.MkdirAll(cfg.RunDir, 0755); err != nil {
		logger.Error(ctx, "create run dir failed", zap.Error(err))
		return 1
	}

	langs, err := compile.NewRegistry(cfg.Languages)
	if err != nil {
		logger.Error(ctx, "load language config failed", zap.Error(err))
		return 1
	}

	judgeQueue, err := newQueue(cfg.Queue)
	if err != nil {
		logger.Error(ctx, "init judge queue failed", zap.Error(err))
		return 1
	}
	defer func() {
		_ = judgeQueue.Close()
	}()

	client := frontend.New(cfg.FrontendURL, cfg.SecretKey)
	cache, err := taskinfo.NewManager(taskinfo.Config{
		CacheDir:     cfg.CacheDir,
		StateFile:    cfg.StateFile,
		JudgeQueue:   judgeQueue,
		Frontend:     client,
		DisableFetch: cfg.Debug,
	})
	if err != nil {
		logger.Error(ctx, "init task info cache failed", zap.Error(err))
		return 1
	}
	if err := cache.Load(ctx); err != nil {
		logger.Error(ctx, "load task info cache failed", zap.Error(err))
		return 1
	}

	puller, err := datapack.NewPuller(withDataPackDir(cfg.DataPack, cfg.TestCasesDir))
	if err != nil {
		logger.Error(ctx, "init data pack puller failed", zap.Error(err))
		return 1
	}

	var sandboxOpts []sandbox.Option
	if cfg.Sandbox.Binary != "" {
		sandboxOpts = append(sandboxOpts, sandbox.WithBinary(cfg.Sandbox.Binary))
	}
	if cfg.Sandbox.BoxRoot != "" {
		sandboxOpts = append(sandboxOpts, sandbox.WithBoxRoot(cfg.Sandbox.BoxRoot))
	}
	driver := sandbox.NewIsolateDriver(sandboxOpts...)
	prep := compile.NewPreparer(driver, langs, cfg.RunDir)
	pipe := pipeline.New(driver, prep, cfg.RunDir, cfg.TestCasesDir)

	m := metrics.New(func() float64 {
		n, err := judgeQueue.Len(context.Background())
		if err != nil {
			return 0
		}
		return float64(n)
	})

	pool := worker.New(judgeQueue, pipe, client, m, cfg.Workers, cfg.Debug)
	server := api.NewServer(cfg.SecretKey, cache, puller, m)

	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info(gctx, "listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := cache.RunUpdateWorker(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := pool.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Shutdown is drain-first: stop taking submissions, let the backlog
	// judge and report, then tear everything down. A second signal skips
	// the drain.
	g.Go(func() error {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-gctx.Done():
			return nil
		case sig := <-sigCh:
			logger.Info(gctx, "shutdown requested, draining", zap.String("signal", sig.String()))
		}
		server.BeginDrain()
		cache.BeginDrain()
		pool.BeginDrain()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)

		go func() {
			select {
			case sig := <-sigCh:
				logger.Warn(gctx, "second signal, aborting drain", zap.String("signal", sig.String()))
				cancel()
			case <-gctx.Done():
			}
		}()
		return nil
	})

	err = g.Wait()
	if saveErr := cache.Save(); saveErr != nil {
		logger.Error(ctx, "persist task info state failed", zap.Error(saveErr))
	}
	if err != nil {
		logger.Error(ctx, "worker exited with error", zap.Error(err))
		return 1
	}

	if rmErr := os.RemoveAll(cfg.RunDir); rmErr != nil {
		logger.Warn(ctx, "remove run dir failed", zap.Error(rmErr))
	}
	logger.Info(ctx, "shutdown complete")
	return 0
}

func newQueue(cfg QueueConfig) (queue.Queue, error) {
	if cfg.Backend == "redis" {
		return queue.NewRedisQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
	}
	return queue.NewMemoryQueue(), nil
}

func withDataPackDir(cfg datapack.Config, testCasesDir string) datapack.Config {
	if cfg.Dir == "" {
		cfg.Dir = testCasesDir
	}
	return cfg
}
