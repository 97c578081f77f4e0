// Package ingress implements the HTTP ingress front-end: connection
// admission, request validation and enrichment, body decoding, route-table
// dispatch to bounded per-route worker pools, async completion handoff,
// metrics and tracing, and the supervised start/shutdown lifecycle. See
// httpx for the underlying HTTP/1.1 wire protocol.
package ingress

import (
	"context"
	"net"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/eventmesh-go/httpingress/httpx"
	"github.com/eventmesh-go/httpingress/ingress/breaker"
	"github.com/eventmesh-go/httpingress/ingress/gate"
	"github.com/eventmesh-go/httpingress/ingress/workerpool"
	"github.com/eventmesh-go/httpingress/internal/config"
	"github.com/eventmesh-go/httpingress/internal/obs"
)

// Server is the HTTP ingress front-end: a dedicated wire server
// (httpx.Server) fronted by a connection Gate and backed by a RouteTable of
// per-route worker pools.
type Server struct {
	cfg config.Config

	inner     *httpx.Server
	gate      *gate.Gate
	routes    *RouteTable
	breakers  *breaker.Registry
	validator *Validator
	recorder  Recorder
	tracer    Tracer
	logger    obs.Logger
	meter     obs.Meter
	completer *workerpool.Pool

	headerBuilder HeaderBuilder
	bodyBuilder   BodyBuilder

	started atomic.Bool
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// Deps collects Server's constructor dependencies; any nil field falls
// back to a no-op implementation (NopLogger, NopMeter, and so on). A nil
// Recorder is built over Meter, so it is a no-op only when Meter is nil too.
type Deps struct {
	Routes   *RouteTable
	Breakers *breaker.Registry
	Recorder Recorder
	Tracer   Tracer
	Logger   obs.Logger
	Meter    obs.Meter
}

// NewServer wires an ingress Server from cfg and deps. The returned Server
// is not yet listening — call Start.
func NewServer(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = obs.NopLogger{}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = NopTracer{}
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = NewRecorder(deps.Meter)
	}
	routes := deps.Routes
	if routes == nil {
		routes = NewRouteTable(deps.Breakers)
	}

	s := &Server{
		cfg:       cfg,
		routes:    routes,
		breakers:  deps.Breakers,
		recorder:  recorder,
		tracer:    tracer,
		logger:    logger,
		meter:     deps.Meter,
		completer: workerpool.New(cfg.CompleterPoolSize, cfg.CompleterQueueSize),
		gate: gate.New(gate.Config{
			MaxConnections:    cfg.MaxConnections,
			IdleTimeout:       cfg.IdleTimeout,
			RateLimitCapacity: cfg.RateLimitCapacity,
			RateLimitRefill:   cfg.RateLimitRefill,
		}),
		validator: &Validator{ServerIP: cfg.ServerIP, Charset: cfg.Charset},
	}

	if deps.Breakers != nil && deps.Meter != nil {
		deps.Breakers.OnTrip(func(route string, from, to breaker.State) {
			if to == breaker.Open {
				s.meter.Counter("circuit_breaker_trips_total", 1, obs.Label{Key: "route", Value: route})
			}
		})
	}

	s.validator.Started = &s.started
	s.inner = &httpx.Server{
		Addr:           cfg.Addr,
		Handler:        s,
		IdleTimeout:    cfg.IdleTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Charset:        cfg.Charset,
		OnAccept:       s.gate.Accept,
		OnClose:        s.gate.Release,
		OnRequest:      s.gate.Touch,
		OnError: func(c net.Conn, err error) {
			s.logger.Logf(obs.Warn, "connection error remote=%s err=%v", c.RemoteAddr(), err)
		},
		MaxHeaderBytes: 0,
	}
	return s
}

// SetHeaderBuilder overrides the default pass-through code-path header
// builder. Must be called before Start.
func (s *Server) SetHeaderBuilder(b HeaderBuilder) { s.headerBuilder = b }

// SetBodyBuilder overrides the default pass-through code-path body
// builder. Must be called before Start.
func (s *Server) SetBodyBuilder(b BodyBuilder) { s.bodyBuilder = b }

// Routes exposes the route table for registration via
// RegisterCodeProcessor/RegisterURIProcessor.
func (s *Server) Routes() *RouteTable { return s.routes }

// Start binds the listener, freezes the route table, and supervises the
// acceptor, the connection gate's idle reaper, and the completer pool as
// one errgroup that cancels together.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.routes.Freeze()

	gctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(gctx)
	s.group = g

	g.Go(func() error {
		err := s.inner.Serve(ln)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		<-gctx.Done()
		s.gate.Close()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.completer.Close()
		return nil
	})

	s.started.Store(true)
	return nil
}

// Shutdown flips started to false, so every subsequent request is answered
// with 503 before it reaches the route table, cancels the supervised
// group, and waits for it to drain or ctx to expire. Idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.started.Store(false)
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LiveConnections reports the connection Gate's current admission count.
func (s *Server) LiveConnections() int64 { return s.gate.Current() }
