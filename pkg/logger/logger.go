package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger with proper configuration
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	// Override with environment if not provided
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	// Set formatter based on environment
	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	log.SetOutput(os.Stdout)

	// Store global logger reference
	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// WithComponent creates a logger scoped to one scheduler/simulation component
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// WithStep creates a logger with scheduler step context
func WithStep(component, step string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"component": component,
		"step":      step,
	})
}

// WithMatch creates a logger with match context
func WithMatch(matchID uint) *logrus.Entry {
	return GetLogger().WithField("match_id", matchID)
}

// WithTournament creates a logger with tournament context
func WithTournament(tournamentID uint) *logrus.Entry {
	return GetLogger().WithField("tournament_id", tournamentID)
}

// WithTeam creates a logger with team context
func WithTeam(teamID uint) *logrus.Entry {
	return GetLogger().WithField("team_id", teamID)
}

// WithHTTPContext creates a logger with HTTP request context
func WithHTTPContext(method, path, userAgent string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"http_method":     method,
		"http_path":       path,
		"http_user_agent": userAgent,
	})
}
