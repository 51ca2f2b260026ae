package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"route-animator/internal/anim"
	"route-animator/internal/api"
	"route-animator/internal/config"
	"route-animator/internal/db"
	"route-animator/internal/hub"
	"route-animator/internal/itinerary"
	"route-animator/internal/logging"
	"route-animator/internal/metrics"
	"route-animator/internal/playback"
	"route-animator/internal/publisher"
	"route-animator/internal/render"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config error")
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	it, err := loadItinerary(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("source", cfg.ItinerarySource).Msg("load itinerary")
	}
	logger.Info().Str("itinerary", it.ID).Int("days", it.Len()).Msg("itinerary loaded")

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.StepDistance, cfg.FrameRate)
		metricsSrv = mcol.Serve(cfg.MetricsAddr, logger)
	}

	wsHub := hub.NewHub(logging.Sampled(logger.With().Str("component", "hub").Logger()))
	scene := render.NewScene(logger.With().Str("component", "scene").Logger(), wsHub)
	go wsHub.Run(ctx)
	if mcol != nil {
		mcol.RegisterGaugeFunc("animator_ws_clients", "Connected map clients.", func() float64 {
			return float64(wsHub.ClientCount())
		})
	}

	clock := render.NewTickerClock(cfg.FrameRate)
	defer clock.Stop()

	ctrl := playback.New(ctx, playback.Options{
		Renderer:     scene,
		Clock:        clock,
		Days:         it,
		StepDistance: cfg.StepDistance,
		Styles: anim.Styles{
			Dynamic:  render.LineStyle(cfg.LineWidth, cfg.DynamicColor),
			Trail:    render.LineStyle(cfg.LineWidth, cfg.TrailColor),
			IconSize: cfg.IconSize,
		},
		Logger:  logger.With().Str("component", "playback").Logger(),
		Metrics: playbackMetrics(mcol),
		OnProgress: func(pct float64) {
			scene.Emit(render.ProgressCommand(pct))
		},
		OnState: func(s playback.State, day int) {
			scene.Emit(render.StateCommand(string(s), day))
		},
	})

	// NATS is optional; an empty NATS_URL disables it.
	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects,
			wrapPublisherMetrics(mcol), logger.With().Str("component", "nats").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("nats error")
		}
		defer pub.Close()
		scene.AddSink(pub)
		if err := pub.SubscribeControl(func(cmd playback.Command) error {
			return ctrl.Handle(ctx, cmd)
		}); err != nil {
			logger.Fatal().Err(err).Msg("nats subscribe")
		}
	}

	router, err := api.NewRouter(
		api.NewHTTPHandler(ctrl, it),
		api.NewWSHandler(wsHub, scene, ctrl, logger.With().Str("component", "ws").Logger()),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("http router")
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := ctrl.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("stop playback")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	scene.Close()
	logger.Info().Msg("shutdown complete")
}

func loadItinerary(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*itinerary.Itinerary, error) {
	if cfg.ItinerarySource != config.SourcePostgres {
		return itinerary.LoadFile(cfg.ItineraryFile)
	}

	dsn := cfg.DatabaseURL
	if cfg.ItineraryDB != "" {
		var err error
		if dsn, err = db.WithDBName(dsn, cfg.ItineraryDB); err != nil {
			return nil, err
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		return nil, err
	}
	logger.Info().Str("dsn", db.Redact(dsn)).Msg("connected to itinerary database")

	id := cfg.ItineraryID
	if id == "" {
		if id, err = db.ResolveLatestItinerary(ctx, sqlDB, cfg.ItineraryLike); err != nil {
			return nil, err
		}
		logger.Info().Str("itinerary", id).Msg("resolved latest itinerary")
	}
	return db.LoadItinerary(ctx, sqlDB, id)
}

func playbackMetrics(c *metrics.Collector) playback.Metrics {
	if c == nil {
		return nil
	}
	return c
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
