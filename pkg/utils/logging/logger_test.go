package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

func TestNew(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf)
	gt.V(t, logger).NotNil()

	logger.Info("hello from test")
	gt.S(t, buf.String()).Contains("hello from test")
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("warn", buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	gt.S(t, out).NotContains("debug message")
	gt.S(t, out).NotContains("info message")
	gt.S(t, out).Contains("warn message")
	gt.S(t, out).Contains("error message")
}

func TestLevelParse(t *testing.T) {
	gt.Equal(t, logging.Level("debug"), slog.LevelDebug)
	gt.Equal(t, logging.Level("WARNING"), slog.LevelWarn)
	gt.Equal(t, logging.Level("bogus"), slog.LevelInfo)
}

func TestContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf)

	ctx := logging.With(context.Background(), logger)
	logging.From(ctx).Info("via context")
	gt.S(t, buf.String()).Contains("via context")

	// Context without a logger falls back to the default
	gt.V(t, logging.From(context.Background())).NotNil()
}
