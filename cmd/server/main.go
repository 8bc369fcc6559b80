package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lk2023060901/chatbot-rag/internal/app"
	"github.com/lk2023060901/chatbot-rag/internal/conf"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
)

var (
	configFile  = flag.String("config", "config.yaml", "config file path")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(app.Version)
		return
	}

	cfg, err := conf.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

// run 阻塞到收到 SIGINT/SIGTERM 或 HTTP 服务异常退出
func run(cfg *conf.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := app.New(ctx, cfg, log, true)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	defer cleanup()

	srv := a.HTTPServer()
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()
	log.Info("chatbot-rag started",
		zap.String("version", app.Version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("vectorstore", cfg.VectorStore.Backend),
		zap.String("kb_storage", cfg.KB.Storage))

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := srv.Stop(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}
