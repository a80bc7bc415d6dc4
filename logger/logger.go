// Package logger
package logger

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Init(path string)
	InitMultiWriter(path string)

	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Debug(msg string)
	Panic(msg string)

	WithStr(key, value string) Logger
	WithBool(key string, value bool) Logger
	WithInt(key string, value int) Logger
	WithAny(key string, value any) Logger
	WithErr(err error) Logger
}

type logger struct {
	base    zerolog.Logger
	context map[string]any
	path    string
}

func New() Logger {
	return &logger{
		base: zerolog.Nop(),
		path: "./logs/fileshare.log",
	}
}

// Nop discards everything, used as the default for core components.
func Nop() Logger {
	return &logger{base: zerolog.Nop()}
}

// NewWriter logs JSON lines to w at the given level.
func NewWriter(w io.Writer, level zerolog.Level) Logger {
	return &logger{
		base: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

func (l *logger) fileWriter() io.Writer {
	return &lumberjack.Logger{
		Filename:   l.path,
		MaxSize:    5,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

func (l *logger) Init(path string) {
	if path != "" {
		l.path = path
	}

	l.base = zerolog.New(l.fileWriter()).
		With().
		Timestamp().
		Logger()
}

func (l *logger) InitMultiWriter(path string) {
	if path != "" {
		l.path = path
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	multi := zerolog.MultiLevelWriter(console, l.fileWriter())

	l.base = zerolog.New(multi).
		With().
		Timestamp().
		Logger()
}

func (l *logger) Info(msg string) {
	l.base.Info().Fields(l.context).Msg(msg)
}

func (l *logger) Warn(msg string) {
	l.base.Warn().Fields(l.context).Msg(msg)
}

func (l *logger) Fatal(msg string) {
	l.base.Fatal().Fields(l.context).Msg(msg)
}

func (l *logger) Error(msg string) {
	l.base.Error().Fields(l.context).Msg(msg)
}

func (l *logger) Panic(msg string) {
	l.base.Panic().Fields(l.context).Msg(msg)
}

func (l *logger) Debug(msg string) {
	l.base.Debug().Fields(l.context).Msg(msg)
}

func (l *logger) WithStr(key, value string) Logger {
	return l.withField(key, value)
}

func (l *logger) WithBool(key string, value bool) Logger {
	return l.withField(key, value)
}

func (l *logger) WithInt(key string, value int) Logger {
	return l.withField(key, value)
}

func (l *logger) WithAny(key string, value any) Logger {
	return l.withField(key, value)
}

func (l *logger) WithErr(err error) Logger {
	if err == nil {
		return l
	}
	return l.withField(zerolog.ErrorFieldName, err.Error())
}

func (l *logger) withField(key string, value any) Logger {
	newCtx := make(map[string]any, len(l.context)+1)
	maps.Copy(newCtx, l.context)
	newCtx[key] = value

	return &logger{
		base:    l.base,
		context: newCtx,
		path:    l.path,
	}
}

func LogPath(path string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, "fileshare", path)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "fileshare.log")
	return logPath, nil
}
