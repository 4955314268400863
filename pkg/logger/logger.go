package logger

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ServiceName is attached to every event as "service".
const ServiceName = "community-campaigns"

var (
	log   zerolog.Logger
	level = zerolog.InfoLevel
)

// Init sets the level and rebuilds the global logger on stdout. Unknown or
// empty levels mean info; debug switches to the console writer.
func Init(lvl string) {
	parsed, err := zerolog.ParseLevel(lvl)
	if err != nil || lvl == "" {
		parsed = zerolog.InfoLevel
	}
	level = parsed

	if level == zerolog.DebugLevel {
		build(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
		return
	}
	build(os.Stdout)
}

// SetOutput keeps the current level and writes to w instead.
func SetOutput(w io.Writer) {
	build(w)
}

func build(w io.Writer) {
	log = zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
}

func init() {
	Init("info")
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }

func Infof(format string, v ...interface{})  { log.Info().Msgf(format, v...) }
func Warnf(format string, v ...interface{})  { log.Warn().Msgf(format, v...) }
func Errorf(format string, v ...interface{}) { log.Error().Msgf(format, v...) }

// Fatalf exits the process after logging.
func Fatalf(format string, v ...interface{}) { log.Fatal().Msgf(format, v...) }

// ForCampaign returns a child logger whose events carry campaign_id.
func ForCampaign(campaignID string) *zerolog.Logger {
	l := log.With().Str("campaign_id", campaignID).Logger()
	return &l
}

// quietPaths are hit by health checks and scrapers; they are logged only on failure.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// GinLogger logs one event per request. The route template is logged
// instead of the raw path so campaign ids do not fan out log keys; the
// caller's user id is included once auth has run.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if quietPaths[c.Request.URL.Path] && status < 400 {
			return
		}

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		event = event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if userID, ok := c.Get("user_id"); ok {
			event = event.Interface("user_id", userID)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("request")
	}
}
