// Command eventmeshd is the ingress front-end's deployable entrypoint: it
// wires configuration, observability, the route table and a small set of
// demonstration processors, then runs until an OS signal asks it to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/eventmesh-go/httpingress/ingress"
	"github.com/eventmesh-go/httpingress/ingress/breaker"
	"github.com/eventmesh-go/httpingress/ingress/workerpool"
	"github.com/eventmesh-go/httpingress/internal/config"
	"github.com/eventmesh-go/httpingress/internal/health"
	"github.com/eventmesh-go/httpingress/internal/metrics"
	"github.com/eventmesh-go/httpingress/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "eventmeshd: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logLevel := obs.Info
	switch cfg.LogLevel {
	case "debug":
		logLevel = obs.Debug
	case "warn":
		logLevel = obs.Warn
	case "error":
		logLevel = obs.Error
	}
	obsLogger := obs.NewSlogLogger(logger, logLevel)

	var meter *metrics.PrometheusMeter
	if cfg.MetricsEnabled {
		meter = metrics.NewPrometheusMeter("")
	}

	checker := health.NewChecker(10 * time.Second)
	checker.Register("goroutines", func(ctx context.Context) error {
		if n := runtime.NumGoroutine(); n > 200000 {
			return fmt.Errorf("too many goroutines: %d", n)
		}
		return nil
	})

	breakers := breaker.NewRegistry(breaker.Config{
		MaxFailures:      5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	})

	var meterDep obs.Meter
	if meter != nil {
		meterDep = meter
	}

	var tracer ingress.Tracer = ingress.NopTracer{}
	if cfg.TracingEnabled {
		tracer = &ingress.BasicTracer{Logger: obsLogger}
	}

	routes := ingress.NewRouteTable(breakers)
	server := ingress.NewServer(cfg, ingress.Deps{
		Routes:   routes,
		Breakers: breakers,
		Tracer:   tracer,
		Logger:   obsLogger,
		Meter:    meterDep,
	})

	registerDemoProcessors(server, obsLogger, cfg)

	checker.Register("ingress_gate", func(ctx context.Context) error {
		if n := server.LiveConnections(); n < 0 {
			return fmt.Errorf("negative live connection count: %d", n)
		}
		return nil
	})

	adminMux := http.NewServeMux()
	if meter != nil {
		adminMux.Handle("/metrics", meter.Handler())
	}
	adminMux.HandleFunc("/readyz", checker.ReadinessHandler())
	adminMux.HandleFunc("/livez", health.LivenessHandler())
	adminSrv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      adminMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obsLogger.Logf(obs.Error, "admin server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	if err := server.Start(ctx); err != nil {
		obsLogger.Logf(obs.Error, "ingress server failed to start: %v", err)
		cancel()
		os.Exit(1)
	}
	obsLogger.Logf(obs.Info, "eventmeshd listening on %s", cfg.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	obsLogger.Logf(obs.Info, "shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		obsLogger.Logf(obs.Error, "shutdown error: %v", err)
	}
	_ = adminSrv.Close()
	obsLogger.Logf(obs.Info, "eventmeshd stopped")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}

// registerDemoProcessors wires a minimal code-path and URI-path route so a
// freshly started eventmeshd answers something other than REQUESTCODE_INVALID
// out of the box. Real deployments register their own CodeProcessor/
// EventProcessor implementations the same way, through Server.Routes().
func registerDemoProcessors(server *ingress.Server, logger obs.Logger, cfg config.Config) {
	echoPool := workerpool.New(cfg.DefaultPoolWorkers, cfg.DefaultPoolQueue)
	server.Routes().RegisterCodeProcessor("200", echoCodeProcessor{}, echoPool)

	publishPool := workerpool.New(cfg.DefaultPoolWorkers, cfg.DefaultPoolQueue)
	server.Routes().RegisterURIProcessor("/eventmesh/publish/", echoEventProcessor{logger: logger}, publishPool)
}

// echoCodeProcessor answers request code 200 by reflecting the decoded body
// back as the response payload.
type echoCodeProcessor struct{}

func (echoCodeProcessor) RejectRequest() bool { return false }

func (echoCodeProcessor) ProcessRequest(ctx context.Context, async *ingress.AsyncContext[*ingress.CodeCommand]) error {
	resp := async.Request.CreateHTTPCommandResponse(ingress.CodeSuccess)
	resp.Body = async.Request.Body
	async.OnComplete(resp)
	return nil
}

// echoEventProcessor answers the /eventmesh/publish/ URI route by reflecting
// the decoded body back, demonstrating the completer pool hand-off: it
// defers OnComplete to a goroutine submitted on AsyncContext.Completer()
// instead of completing inline.
type echoEventProcessor struct {
	logger obs.Logger
}

func (echoEventProcessor) RejectRequest() bool { return false }

func (p echoEventProcessor) ProcessRequest(ctx context.Context, async *ingress.AsyncContext[*ingress.EventWrapper]) error {
	completer := async.Completer()
	if completer == nil {
		async.OnComplete(async.Request.CreateHTTPResponse(ingress.CodeSuccess))
		return nil
	}
	err := completer.Submit(func() {
		async.OnComplete(async.Request.CreateHTTPResponse(ingress.CodeSuccess))
	})
	if err != nil {
		p.logger.Logf(obs.Warn, "completer pool saturated, completing inline: %v", err)
		async.OnComplete(async.Request.CreateHTTPResponse(ingress.CodeSuccess))
	}
	return nil
}
