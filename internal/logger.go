package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"paybox/services"
	"time"
)

type LogMessage struct {
	Time     time.Time `json:"time" bson:"time"`
	Level    string    `json:"level" bson:"level"`
	Category string    `json:"category" bson:"category"`
	Text     string    `json:"text" bson:"text"`
}

func (m *LogMessage) DataType() string {
	return "log_message"
}

// Logger writes JSON records to stdout and copies info and above to the
// database log collection when a database is set.
type Logger struct {
	category string
	debug    bool
	database services.Database
	log      *slog.Logger
}

func NewLogger(category string, debug bool, database services.Database) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		category: category,
		debug:    debug,
		database: database,
		log:      slog.New(handler).With("category", category),
	}
}

func (l *Logger) Debug(text string) {
	l.log.Debug(text)
}

func (l *Logger) Info(text string) {
	l.log.Info(text)
	l.store(slog.LevelInfo, text)
}

func (l *Logger) Warn(text string) {
	l.log.Warn(text)
	l.store(slog.LevelWarn, text)
}

func (l *Logger) Error(text string, err error) {
	if err != nil {
		text = fmt.Sprintf("%s: %v", text, err)
	}
	l.log.Error(text)
	l.store(slog.LevelError, text)
}

func (l *Logger) store(level slog.Level, text string) {
	if l.database == nil {
		return
	}
	message := &LogMessage{
		Time:     time.Now(),
		Level:    level.String(),
		Category: l.category,
		Text:     text,
	}
	if err := l.database.WriteLogMessage(message); err != nil {
		l.log.LogAttrs(context.Background(), slog.LevelError, "write log message", slog.String("error", err.Error()))
	}
}

// secret keeps the first five characters of a token or identifier.
func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
