package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xiaot623/gogo/convstore/internal/app"
	handler "github.com/xiaot623/gogo/convstore/internal/transport/http"
	"github.com/xiaot623/gogo/convstore/internal/transport/rpc"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)

	ctx := context.Background()
	svc, err := app.NewService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	scratch, err := app.NewRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer scratch.Close()

	server := handler.NewServer(svc, scratch, logger)

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(svc, logger)
		if err != nil {
			return err
		}
		if err := rpcServer.Listen(fmt.Sprintf(":%d", cfg.RPCPort)); err != nil {
			return fmt.Errorf("rpc listen: %w", err)
		}
		go func() {
			if err := rpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("rpc server: %w", err)
			}
		}()
	}

	slog.Info("convstore started",
		"port", cfg.HTTPPort,
		"rpc_port", cfg.RPCPort,
		"driver", cfg.DatabaseDriver,
		"cache", cfg.CacheEnabled(),
		"store_timeout", cfg.StoreTimeout,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down http server gracefully", "error", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down rpc server gracefully", "error", err)
		}
	}

	slog.Info("convstore stopped")
	return nil
}
