package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/supportbot/config"
	"github.com/mohammad-safakhou/supportbot/internal/assistant"
	"github.com/mohammad-safakhou/supportbot/internal/corpus"
	"github.com/mohammad-safakhou/supportbot/internal/ratelimit"
	"github.com/mohammad-safakhou/supportbot/internal/store"
	"github.com/mohammad-safakhou/supportbot/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Deps are the collaborators the router is built from.
type Deps struct {
	Chat           Chatter
	History        HistoryStore
	Provider       provider.Client
	Limiter        middleware.RateLimiterStore
	Metrics        *Metrics
	Gatherer       prometheus.Gatherer
	CORSOrigins    []string
	// TrustedProxies may set X-Forwarded-For. Empty means the socket address is the client.
	TrustedProxies []*net.IPNet
	Logger         *log.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = clientIPExtractor(d.TrustedProxies)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := d.Logger
	if baseLogger == nil {
		baseLogger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		baseLogger.Printf("%d %s %s from %s [%s]: %v", code, req.Method, req.URL.Path, c.RealIP(), rid, err)
		if !c.Response().Committed {
			if req.Method == http.MethodHead {
				_ = c.NoContent(code)
				return
			}
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	registerDocs(e)

	api := e.Group("/api")
	limiter := d.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemoryStore(ratelimit.DefaultRequests, ratelimit.DefaultWindow)
	}
	api.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: limiter,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, msgLimiterDown).SetInternal(err)
			}
			if d.Metrics != nil {
				d.Metrics.RateLimited.Inc()
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, ratelimit.Message)
		},
	}))

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
	})
	ch := &ChatHandler{Chat: d.Chat, Provider: d.Provider, Metrics: d.Metrics}
	ch.Register(api)
	hh := &HistoryHandler{Store: d.History}
	hh.Register(api)

	return e
}

// clientIPExtractor keys clients on the socket address unless the peer is a
// configured proxy, in which case the X-Forwarded-For chain is walked.
func clientIPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)

	if err := cfg.Model.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	docs, err := corpus.Load(cfg.Docs.Path)
	if err != nil {
		return err
	}
	logger.Printf("loaded %d documentation entries from %s", docs.Len(), cfg.Docs.Path)

	st, err := store.NewWithDSN(ctx, store.Dialect(cfg.Storage.Driver), cfg.Storage.DSN())
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate("up", 0); err != nil {
		return err
	}

	gen, client, err := NewGenerator(cfg.Model)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(reg)

	proxies, err := cfg.Server.TrustedProxyRanges()
	if err != nil {
		return err
	}
	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	svc := assistant.NewService(st, metrics.Timed(gen), docs, assistant.WithTimeout(cfg.Model.Timeout))
	e := NewRouter(Deps{
		Chat:           svc,
		History:        st,
		Provider:       client,
		Limiter:        limiter,
		Metrics:        metrics,
		Gatherer:       reg,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedProxies: proxies,
	})

	addr := cfg.Server.Addr()
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s (store=%s, model=%s)", addr, st.Dialect(), client)
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLimiter builds the configured rate limiter store and its cleanup.
func newLimiter(ctx context.Context, cfg *config.Config) (middleware.RateLimiterStore, func(), error) {
	rl := cfg.Server.RateLimit
	if rl.Backend != "redis" {
		return ratelimit.NewMemoryStore(rl.Requests, rl.Window), func() {}, nil
	}
	rc := cfg.Storage.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:        rc.Addr(),
		Password:    rc.Password,
		DB:          rc.DB,
		DialTimeout: rc.Timeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis connection failed (%s): %w", rc.Addr(), err)
	}
	return ratelimit.NewRedisStore(rdb, rl.Requests, rl.Window), func() { _ = rdb.Close() }, nil
}
