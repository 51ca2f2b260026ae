package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var playbackStates = []string{"idle", "playing", "paused"}

type Collector struct {
	reg *prometheus.Registry

	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec // outcome label: completed|cancelled|failed

	Frames        prometheus.Counter
	FrameDuration prometheus.Histogram
	Binds         *prometheus.CounterVec // pool label: dynamic|passed

	Progress      prometheus.Gauge
	PlaybackState *prometheus.GaugeVec // one-hot over playbackStates

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	StepDistance prometheus.Gauge // meters
	FrameRate    prometheus.Gauge
}

func NewCollector(stepDistance float64, frameRate int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animator_runs_started_total",
			Help: "Total animation runs started.",
		}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "animator_runs_finished_total",
			Help: "Total animation runs finished, by outcome.",
		}, []string{"outcome"}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animator_frames_total",
			Help: "Total frames rendered.",
		}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "animator_frame_duration_seconds",
			Help:    "Duration of one animation step against the renderer.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15),
		}),
		Binds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "animator_drawable_binds_total",
			Help: "Drawables (re)bound to the renderer, by pool.",
		}, []string{"pool"}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "animator_progress_percent",
			Help: "Progress of the current run in percent.",
		}),
		PlaybackState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "animator_playback_state",
			Help: "1 for the current playback state, 0 otherwise.",
		}, []string{"state"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animator_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animator_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "animator_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "animator_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		StepDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "animator_step_distance_meters",
			Help: "Distance between consecutive animation points.",
		}),
		FrameRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "animator_frame_rate",
			Help: "Configured frames per second.",
		}),
	}

	reg.MustRegister(
		c.RunsStarted, c.RunsFinished,
		c.Frames, c.FrameDuration, c.Binds,
		c.Progress, c.PlaybackState,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.StepDistance, c.FrameRate,
	)

	c.StepDistance.Set(stepDistance)
	c.FrameRate.Set(float64(frameRate))
	c.StateSet("idle")

	return c
}

// RegisterGaugeFunc exposes a value computed at scrape time, such as the
// number of connected map clients.
func (c *Collector) RegisterGaugeFunc(name, help string, f func() float64) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, f))
}

func (c *Collector) FrameObserve(d time.Duration) {
	c.Frames.Inc()
	c.FrameDuration.Observe(d.Seconds())
}

func (c *Collector) RunStarted()                { c.RunsStarted.Inc() }
func (c *Collector) RunFinished(outcome string) { c.RunsFinished.WithLabelValues(outcome).Inc() }
func (c *Collector) BindInc(pool string)        { c.Binds.WithLabelValues(pool).Inc() }
func (c *Collector) ProgressSet(pct float64)    { c.Progress.Set(pct) }

func (c *Collector) StateSet(state string) {
	for _, s := range playbackStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.PlaybackState.WithLabelValues(s).Set(v)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
