package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hackgods/clinic-appointments/internal/api"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/identity"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/postal"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/storage"
	"github.com/hackgods/clinic-appointments/internal/telemetry"
	"github.com/hackgods/clinic-appointments/internal/weather"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s db_driver=%s", cfg.Env, cfg.HTTPPort, cfg.DBDriver)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(rootCtx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "clinic-api",
		ServiceVersion: cfg.Version,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatalf("telemetry setup error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("error flushing traces: %v", err)
		}
	}()

	backend, err := storage.Open(rootCtx, cfg)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer backend.Close()

	// Redis is optional: without it forecasts are not cached and /auth is not rate limited.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.Connect(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("redis unavailable, continuing without cache and rate limiting: %v", err)
			rdb = nil
		} else {
			log.Println("connected to Redis")
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Printf("error closing redis: %v", err)
				}
			}()
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	postalClient := postal.NewClient(cfg.PostalBaseURL, cfg.PostalTimeout)

	var forecasts weather.RainRiskFinder = weather.NewClient(weather.Config{
		GeocodingURL: cfg.WeatherGeocodingURL,
		ForecastURL:  cfg.WeatherForecastURL,
		Timezone:     cfg.ClinicTimezone,
		Timeout:      cfg.EnrichmentTimeout,
	})
	var authLimiter api.RateLimiter
	if rdb != nil {
		forecasts = weather.NewCachedClient(forecasts, redisclient.NewJSONCache(rdb, "clinic"), cfg.WeatherCacheTTL)
		if cfg.AuthRateLimit > 0 {
			authLimiter = redisclient.NewRateLimiter(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow, "clinic:rl:auth")
		}
	}

	users := identity.NewService(backend.Users, postalClient, identity.NewTokens(cfg.JWTSecret, cfg.JWTExpiresIn))
	bookings := appointment.NewService(backend.Appointments, users, weather.Enricher{Finder: forecasts}, m, appointment.Options{
		Location:          cfg.Location(),
		EnrichmentTimeout: cfg.EnrichmentTimeout,
	})

	router := api.NewRouter(api.RouterConfig{
		Appointments: bookings,
		Identity:     users,
		Postal:       postalClient,
		Health:       api.NewHealthHandler(backend.Name, backend.Ping, rdb, cfg.Env, cfg.Version),
		AuthLimiter:  authLimiter,
		TrustProxy:   cfg.TrustProxy,
		Metrics:      m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "clinic-api"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			log.Printf("http server error: %v", err)
		}
	}

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
