package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/config"
	"github.com/maneesh/mailattach/internal/handlers"
	"github.com/maneesh/mailattach/internal/storage"
	"github.com/maneesh/mailattach/internal/tracing"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	cfg.ApplyLogging()

	logrus.WithFields(logrus.Fields{
		"service": cfg.ServiceName,
		"port":    cfg.ServicePort,
		"backend": cfg.StoreBackend,
	}).Info("Starting attachment service")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	shutdownTracer, err := tracing.InitTracer(startCtx, cfg.ServiceName, version, cfg.JaegerEndpoint)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logrus.WithError(err).Warn("Error shutting down tracer")
		}
	}()

	opts, err := cfg.AttachmentOptions()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid attachment options")
	}

	store, closeStore, err := storage.Open(startCtx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize store")
	}
	defer closeStore()

	var index handlers.AttachmentIndex
	if cfg.IndexEnabled {
		logrus.Info("Connecting to TiDB...")
		tidbClient, err := storage.NewTiDBClient(startCtx, cfg.GetDSN())
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize TiDB client")
		}
		defer tidbClient.Close()
		index = tidbClient
	}

	reconstructor := attachment.NewReconstructor[string](store, opts)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	handlers.Routes(router,
		handlers.NewWriteHandler(attachment.NewPublisher[string](store, opts), index, opts.MaxFileSize),
		handlers.NewReadHandler(reconstructor),
		handlers.NewManifestHandler(reconstructor),
		handlers.NewListHandler(index),
		func(h http.Handler, op string) http.Handler { return otelhttp.NewHandler(h, op) },
	)

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logrus.WithField("port", cfg.ServicePort).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}
