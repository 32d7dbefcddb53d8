package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type syncRecorder struct {
	zapcore.Core
	synced bool
}

func (s *syncRecorder) Sync() error {
	s.synced = true
	return s.Core.Sync()
}

func TestExitCode_FlushesLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rec := &syncRecorder{Core: core}

	code := exitCode(zap.New(rec), errors.New("listen tcp :8080: address already in use"))

	assert.Equal(t, 1, code)
	assert.True(t, rec.synced)
	assert.Equal(t, 1, logs.FilterMessage("server stopped").Len())
}

func TestExitCode_CleanShutdown(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rec := &syncRecorder{Core: core}

	assert.Equal(t, 0, exitCode(zap.New(rec), nil))
	assert.True(t, rec.synced)
	assert.Equal(t, 0, logs.Len())
}
