package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"rfq-realtime/bus"
	"rfq-realtime/cache"
	"rfq-realtime/config"
	"rfq-realtime/core"
	"rfq-realtime/handlers/api/admin"
	"rfq-realtime/handlers/api/health"
	"rfq-realtime/handlers/auth"
	"rfq-realtime/handlers/websocket"
	authMiddleware "rfq-realtime/middleware"
)

func setupRouter(cfg *config.Config, c core.Cache, gw *websocket.Gateway, startedAt time.Time) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.LimitByIP(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window))

	allowedOrigins := cfg.Socket.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health.HandleHealth(c, gw, startedAt))
	r.Get("/metrics", health.HandleMetrics(startedAt))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.ServiceAuth([]byte(cfg.ServiceJWTSecret)))
			r.Post("/rooms/{roomID}/events", admin.HandlePushEvent(gw))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Not found"})
	})

	return r
}

func setupLogging(cfg *config.Config, logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if cfg.Logging.Dir == "" {
		return
	}
	if err := os.MkdirAll(cfg.Logging.Dir, 0o755); err != nil {
		logrus.WithError(err).Warn("Failed to create log directory, logging to stdout only")
		return
	}
	f, err := os.OpenFile(filepath.Join(cfg.Logging.Dir, "combined.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.WithError(err).Warn("Failed to open log file, logging to stdout only")
		return
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, f))
}

// waitForShutdown blocks until a signal arrives, then tears the process down
// in order: stop accepting connections, close the socket server, close the
// bus, close the cache. Each step tolerates the previous one's failure.
func waitForShutdown(srv *http.Server, gw *websocket.Gateway, b bus.Bus, c core.Cache) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-sigC
	logrus.WithField("signal", s.String()).Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown failed")
	}

	gw.Close()

	if err := b.Close(); err != nil {
		logrus.WithError(err).Warn("Bus close failed")
	}
	if err := c.Close(); err != nil {
		logrus.WithError(err).Warn("Cache close failed")
	}
	logrus.Info("Shutdown complete")
}

func main() {
	cfg := config.Load()

	listenAddress := flag.String("listen", cfg.Addr(), "The address to listen on.")
	logLevel := flag.String("loglevel", cfg.Logging.Level, "The log level (debug, info, warn, error).")
	flag.Parse()

	setupLogging(cfg, *logLevel)
	startedAt := time.Now()

	c := cache.New(cfg)
	b := bus.New(cfg)

	verifier := auth.NewVerifier(cfg.Backend)
	authenticator := auth.NewAuthenticator(c, verifier)
	gw := websocket.New(cfg, c, b, authenticator)
	gw.StartBusSubscription(context.Background())

	r := setupRouter(cfg, c, gw, startedAt)
	r.Mount("/socket.io/", gw.Server().ServeHandler(nil))

	srv := &http.Server{
		Addr:    *listenAddress,
		Handler: r,
	}

	logrus.WithFields(logrus.Fields{
		"addr":     *listenAddress,
		"instance": gw.InstanceID(),
		"bus":      gw.BusAvailable(),
	}).Info("Starting realtime gateway")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(srv, gw, b, c)
}
