package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		panic(err) // no logger configured yet, config failure is unrecoverable
	}

	InitLogging(cfg)
	log.Info("starting cs2 inspect bot fleet")

	accounts, err := LoadAccounts(cfg.AccountsFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load accounts")
	}
	log.WithField("count", len(accounts)).Info("accounts loaded")

	StartSchemaUpdater()

	metrics := NewMetrics(cfg.MetricsNamespace)
	selector := NewProxySelector(cfg, accounts, metrics)

	controller := NewBotController(accounts, cfg, selector, metrics)
	controller.Start()

	if ok := controller.WaitForInitialization(cfg.StartupBarrier); !ok {
		log.Warn("startup finished with no ready bot yet, serving anyway")
	} else {
		log.Info("at least one bot is ready")
	}

	server := NewServer(cfg, controller, metrics)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http api failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http api shutdown error")
	}
	controller.Destroy()
	log.Info("shutdown complete")
}
