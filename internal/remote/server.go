package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tapirbug/fernspielapparat/internal/evaluator"
)

// dnssdServiceType is the DNS-SD service type fernspielapparat instances
// announce themselves under, analogous to direwolf's "_kiss-tnc._tcp"
// (doismellburning-samoyed/src/dns_sd.go).
const dnssdServiceType = "_fernspielctl._tcp"

// Server is the Echo application exposing the remote-control WebSocket
// and a health endpoint (spec §4.G, §4.H).
//
// Grounded on rustyguts-bken/server/internal/httpapi/server.go's Echo app
// wiring (middleware, route registration, Echo() accessor for tests).
type Server struct {
	echo   *echo.Echo
	hub    *Hub
	addr   string
	log    *log.Logger
	announce bool
	port   int
}

// New constructs the Echo application and its broadcast hub. Evaluator
// events reach the hub through BroadcastEvents.
func New(addr string, evalPort EvaluatorPort, announceService bool, logger *log.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	hub := NewHub(logger)
	handler := NewHandler(hub, evalPort, logger)
	handler.Register(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return &Server{
		echo:     e,
		hub:      hub,
		addr:     addr,
		log:      logger.With("component", "remote.server"),
		announce: announceService,
		port:     portOf(addr),
	}
}

// portOf extracts the numeric port from a "host:port" address, returning
// 0 if it can't be parsed (mDNS announcement is then simply skipped).
func portOf(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return p
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// BroadcastEvents forwards every evaluator.Event arriving on events to all
// connected remote clients until ctx is cancelled (spec §4.G: "broadcasts
// state-machine events to connected observers").
func (s *Server) BroadcastEvents(ctx context.Context, events <-chan evaluator.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(toFrame(ev))
		}
	}
}

func toFrame(ev evaluator.Event) Frame {
	switch ev.Kind {
	case evaluator.EventStart:
		return Frame{Type: EventStart, Initial: ev.Initial}
	case evaluator.EventTransition:
		return Frame{Type: EventTransition, From: ev.From, To: ev.To, Reason: ev.Reason}
	case evaluator.EventFinish:
		return Frame{Type: EventFinish, Terminal: ev.Terminal}
	default:
		return Frame{Type: string(ev.Kind)}
	}
}

// Run starts the HTTP server and, if configured, the mDNS responder,
// blocking until ctx is cancelled (spec §4.H bounded shutdown).
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.announce && s.port != 0 {
		go s.announceService(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown did not complete cleanly", "err", err)
		}
	}()

	s.log.Info("remote control listening", "addr", s.addr)
	err := httpSrv.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// announceService publishes the remote-control endpoint over mDNS/DNS-SD
// so clients on the local network can discover it without a fixed address
// (spec §9 "Supplemented features": mDNS self-announcement).
func (s *Server) announceService(ctx context.Context) {
	cfg := dnssd.Config{
		Name: "fernspielapparat",
		Type: dnssdServiceType,
		Port: s.port,
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		s.log.Warn("dns-sd: failed to create service", "err", err)
		return
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		s.log.Warn("dns-sd: failed to create responder", "err", err)
		return
	}
	if _, err := responder.Add(svc); err != nil {
		s.log.Warn("dns-sd: failed to add service", "err", err)
		return
	}

	s.log.Info("dns-sd: announcing fernspielctl service")
	if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("dns-sd: responder stopped", "err", err)
	}
}
