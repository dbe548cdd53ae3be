// Command server runs the code execution HTTP facade: it loads
// configuration, opens the runtime registry, and serves /runtimes,
// /update, and /execute until SIGINT/SIGTERM triggers a graceful
// shutdown.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"coderunner/internal/admission"
	"coderunner/internal/api"
	"coderunner/internal/config"
	"coderunner/internal/execute"
	"coderunner/internal/install"
	"coderunner/internal/obslog"
	"coderunner/internal/registry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	obslog.Init()
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	reg, err := registry.Open(cfg.DatabasePath, cfg.RuntimesRoot)
	if err != nil {
		logger.Fatal("failed to open runtime registry", zap.Error(err))
	}
	defer reg.Close()

	ctrl := admission.New(cfg.MaxConcurrentSubmissions)
	installer := install.New(ctrl, reg, cfg.InstallationTimeout, cfg.UpdateTimeout, cfg.NixBinPath, cfg.WorkDirRoot)
	executor := execute.New(ctrl, reg, cfg.SystemLimits)

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := api.NewServer(reg, installer, executor)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		logger.Fatal("server failed to start", zap.Error(err))
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("graceful shutdown complete")
	}
}
