package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gradebook_service/config"
	"gradebook_service/internal/handler"
	"gradebook_service/internal/probe"
	"gradebook_service/internal/ratelimit"
	"gradebook_service/internal/safeop"
	"gradebook_service/internal/server/health"
	"gradebook_service/internal/service"
	"gradebook_service/pkg/logger"
	"gradebook_service/pkg/logging"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("").Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.Env)
	defer log.Sync()
	ctxLog := logging.New(log.ZapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to set up storage: %v", err)
	}
	defer store.close()

	messenger, closeMessenger, err := newMessenger(cfg, log)
	if err != nil {
		log.Fatalf("Failed to set up messaging: %v", err)
	}
	defer closeMessenger()

	lim := newLimits(cfg)
	defer lim.close()
	if lim.window != nil {
		go lim.window.Cleanup(ctx, cfg.Notification.RateLimit.Window)
	}

	prober := probe.New(store.pinger, cfg.Probe.Timeout)
	exec := safeop.NewExecutor(ctxLog)
	rl := cfg.Notification.RateLimit

	dispatcher := service.NewDispatcher(
		store.directory,
		store.notifications,
		messenger,
		lim.perRecipient,
		ratelimit.NewGlobal(rl.GlobalPerSecond, rl.GlobalBurst),
		prober,
		exec,
		ctxLog,
		service.DispatcherConfig{
			SendTimeout:  cfg.Notification.SendTimeout,
			MaxAttempts:  cfg.Notification.MaxAttempts,
			Backoff:      cfg.Notification.Backoff,
			SuppressSend: cfg.Mail.SuppressSend,
			NetworkHost:  cfg.Probe.NetworkHost,
			ProbeTimeout: cfg.Probe.Timeout,
			ClaimTimeout: cfg.Notification.Retry.ClaimTimeout,
		},
	).WithInbox(store.inbox)
	tracker := service.NewTracker(store.assignments, store.records, store.directory, prober, dispatcher, exec, ctxLog)
	reporter := service.NewReporter(prober, prober, store.notifications, lim.snapshots, ctxLog, service.ReporterConfig{
		NetworkHost:  cfg.Probe.NetworkHost,
		ProbeTimeout: cfg.Probe.Timeout,
		CacheTTL:     cfg.Status.CacheTTL,
	})

	retryCfg := cfg.Notification.Retry
	worker := NewRetryWorker(dispatcher, log.With(zap.String("component", "retry_worker")),
		retryCfg.Interval, retryCfg.MaxTotalAttempts, retryCfg.BatchSize)
	go worker.Start(ctx)

	router := handler.NewRouter(ctxLog, handler.Services{
		Assignments:   tracker,
		Notifications: dispatcher,
		Inbox:         service.NewInbox(store.inbox, exec, ctxLog),
		Status:        reporter,
	})
	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		log.Infof("Starting HTTP server on %s", cfg.HTTP.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxLog.Fatal(ctx, "failed to serve HTTP", zap.Error(err))
		}
	}()

	grpcServer := health.NewGRPCServer(ctxLog)
	watcher := health.Register(grpcServer, reporter, cfg.Status.WatchInterval, ctxLog)
	go watcher.Run(ctx)

	if cfg.GRPC.Address != "" {
		listener, err := net.Listen("tcp", cfg.GRPC.Address)
		if err != nil {
			log.Fatalf("Failed to listen: %v", err)
		}
		go func() {
			log.Infof("Starting gRPC server on %s", cfg.GRPC.Address)
			if err := grpcServer.Serve(listener); err != nil {
				ctxLog.Fatal(ctx, "failed to serve gRPC", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	// sends handed off to the background still get their outcome recorded
	dispatcher.Wait()
	log.Info("Server stopped")
}
