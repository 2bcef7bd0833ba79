package app

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"caption-ingress-service/internal/config"
	"caption-ingress-service/internal/events"
	"caption-ingress-service/internal/observability/logging"
	"caption-ingress-service/internal/service/session"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Publisher   *events.Publisher
	Manager     *session.Manager
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	a.Publisher = events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicUtterance: cfg.Kafka.TopicUtterance,
		TopicDelta:     cfg.Kafka.TopicDelta,
		Principal:      cfg.Kafka.Principal,
	})
	a.Manager = session.NewManager(cfg, a.Publisher)

	a.Logger.Info().Msg("Caption ingress service application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	format := "json"
	if os.Getenv("ENV") == "dev" {
		format = "console"
	}
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     format,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "caption-ingress-service").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", a.Cfg.Observability.LogLevel).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Str("emitMode", a.Cfg.Emitter.Mode).
		Msg("Caption ingress service starting")

	if a.Cfg.Service.SessionTTL > 0 {
		a.Manager.StartReaper(30 * time.Second)
	}
	return nil
}

// Shutdown drains every live session and closes the publisher. Called once
// on process exit, before the HTTP listener stops.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("Caption ingress service shutting down")

	a.Manager.StopReaper()
	a.Manager.CloseAll()
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Error closing publisher")
	}
}
