package logger_test

import (
	"context"
	"testing"

	"github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
)

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	t.Parallel()

	stored := logger.NewNop().With(logger.String("request_id", "abc"))
	ctx := logger.WithContext(context.Background(), stored)

	if got := logger.FromContext(ctx, nil); got != stored {
		t.Errorf("FromContext() = %v, want stored logger", got)
	}
}

func TestFromContext_Fallback(t *testing.T) {
	t.Parallel()

	fallback := logger.NewNop()
	if got := logger.FromContext(context.Background(), fallback); got != fallback {
		t.Errorf("FromContext() did not return fallback")
	}
	if got := logger.FromContext(context.Background(), nil); got == nil {
		t.Error("FromContext() returned nil without fallback")
	}
}

func TestNew_ParsesLevel(t *testing.T) {
	t.Parallel()

	log, err := logger.New(logger.Config{Level: "debug", OutputPaths: []string{"stderr"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Debug("debug entry", logger.ContentID("42"), logger.Job("index"))
}
