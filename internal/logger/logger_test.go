package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := New()
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewWithOptions_Debug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(Options{Debug: true, JSON: true, Out: buf, Component: "extract"})

	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log.Debug().Msg("page fetched")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "page fetched", line["message"])
	assert.Equal(t, "extract", line["component"])
}

func TestNewWithOptions_InfoSuppressesDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(Options{JSON: true, Out: buf})

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	assert.NotZero(t, buf.Len())
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithObject(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))
	ctx = WithObject(ctx, "run-1", "expense")

	log := FromContext(ctx)
	log.Info().Msg("fetching")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "expense", line["object"])
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{"table": "expense__receiptUrls"})

	log.Info().Msg("written")

	assert.Contains(t, buf.String(), "expense__receiptUrls")
}
