package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

type Config struct {
	ItinerarySource string `validate:"oneof=file postgres"`
	ItineraryFile   string `validate:"required_if=ItinerarySource file"`
	ItineraryID     string
	ItineraryLike   string
	ItineraryDB     string
	DatabaseURL     string `validate:"required_if=ItinerarySource postgres"`

	StepDistance float64 `validate:"gt=0"`
	FrameRate    int     `validate:"gt=0,lte=240"`

	HTTPAddr        string        `validate:"required"`
	MetricsAddr     string
	ShutdownTimeout time.Duration `validate:"gt=0"`

	NATSURL           string `validate:"omitempty,url"`
	NATSSubjectPrefix string `validate:"required,excludesall=*>"`
	LogNATSSubjects   bool

	LogLevel  string
	LogFormat string `validate:"oneof=json console"`

	LineWidth    float64 `validate:"gt=0"`
	TrailColor   string  `validate:"hexcolor"`
	DynamicColor string  `validate:"hexcolor"`
	IconSize     float64 `validate:"gt=0"`
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ItinerarySource:   strings.ToLower(getenvDefault("ITINERARY_SOURCE", SourceFile)),
		ItineraryFile:     os.Getenv("ITINERARY_FILE"),
		ItineraryID:       os.Getenv("ITINERARY_ID"),
		ItineraryLike:     os.Getenv("ITINERARY_NAME"),
		ItineraryDB:       os.Getenv("ITINERARY_DB"),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "animator"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         strings.ToLower(getenvDefault("LOG_FORMAT", "json")),
		TrailColor:        getenvDefault("TRAIL_COLOR", "#db7916"),
	}
	cfg.DynamicColor = getenvDefault("DYNAMIC_COLOR", cfg.TrailColor)
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	var err error
	if cfg.StepDistance, err = floatEnv("STEP_DISTANCE_M", 50); err != nil {
		return nil, err
	}
	if cfg.LineWidth, err = floatEnv("LINE_WIDTH", 5); err != nil {
		return nil, err
	}
	if cfg.IconSize, err = floatEnv("ICON_SIZE", 1.5); err != nil {
		return nil, err
	}
	if v := os.Getenv("FRAME_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FRAME_RATE: %q", v)
		}
		cfg.FrameRate = n
	} else {
		cfg.FrameRate = 60
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT_SEC: %q", v)
		}
		cfg.ShutdownTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if cfg.ItinerarySource == SourcePostgres {
		if cfg.DatabaseURL, err = databaseURL(); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set for ITINERARY_SOURCE=postgres")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
