package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Totarae/shortlink/internal/config"
	v2 "github.com/Totarae/shortlink/internal/grpc/v2"
	"github.com/Totarae/shortlink/internal/handlers"
	"github.com/Totarae/shortlink/internal/logger"
	"github.com/Totarae/shortlink/internal/preview"
	"github.com/Totarae/shortlink/internal/reaper"
	"github.com/Totarae/shortlink/internal/router"
	"github.com/Totarae/shortlink/internal/service"
	"github.com/Totarae/shortlink/internal/util"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Ошибка при запуске сервера: %v", err)
	}
}

func run(args []string) error {
	// Инициализация конфигурации
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("Инициализация конфигурации",
		zap.String("address", cfg.ServerAddress),
		zap.String("base_url", cfg.BaseURL),
		zap.String("mode", cfg.Mode),
		zap.Bool("https", cfg.EnableHTTPS),
		zap.String("grpc_address", cfg.GRPCAddress),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.NewShortenerService(repo, util.NewCodeGenerator(cfg.CodeLength), lg, cfg.BaseURL,
		service.WithMaxAttempts(cfg.CodeMaxAttempts),
		service.WithPreviewFetcher(preview.NewFetcher(cfg.PreviewTimeout)),
	)

	rp := reaper.New(svc, cfg.ReaperSchedule, lg, reaper.WithTimeout(cfg.ReaperTimeout))
	if err := rp.Start(); err != nil {
		return fmt.Errorf("ошибка запуска чистки: %w", err)
	}
	defer rp.Stop()

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router.NewRouter(handlers.NewHandler(svc, lg), lg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		lg.Info("Сервер запущен", zap.String("address", cfg.ServerAddress))
		var err error
		if cfg.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP-сервер: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddress != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddress)
		if err != nil {
			return fmt.Errorf("не удалось открыть порт gRPC: %w", err)
		}
		grpcSrv = v2.NewServer(svc, lg)
		go func() {
			lg.Info("gRPC-сервер запущен", zap.String("address", cfg.GRPCAddress))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("gRPC-сервер: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		lg.Info("Получен сигнал завершения")
	case runErr = <-errCh:
		lg.Error("Сервер остановлен с ошибкой", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("Ошибка остановки HTTP-сервера", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	lg.Info("Сервер остановлен")
	return runErr
}
