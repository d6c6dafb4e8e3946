package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongwandou/CoreNLP/pkg/logger"
)

func TestStartBuildsTree(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx, root := Start(ctx, "annotate")
	assert.Same(t, root, FromContext(ctx))

	childCtx, build := Start(ctx, "build")
	build.End()
	_, stage := Start(childCtx, "tokenize")
	stage.End()
	root.End()

	require.Len(t, root.Children(), 1)
	assert.Equal(t, "build", root.Children()[0].Name())
	require.Len(t, build.Children(), 1)
	assert.Equal(t, "req-1", stage.traceID)
	assert.Nil(t, FromContext(context.Background()))
}

func TestEndIsIdempotent(t *testing.T) {
	_, s := Start(context.Background(), "x")
	s.End()
	d := s.Duration()
	time.Sleep(2 * time.Millisecond)
	s.End()
	assert.Equal(t, d, s.Duration())
}

func TestLogWritesNestedGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := logger.WithRequestID(context.Background(), "req-2")
	ctx, root := Start(ctx, "semgrex")
	root.SetAttr("sentences", 2)
	_, child := Start(ctx, "depparse")
	child.End()
	root.End()
	root.Log(ctx, log, slog.LevelDebug)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "trace", record["msg"])
	assert.Equal(t, "req-2", record["trace_id"])
	tree := record["semgrex"].(map[string]any)
	assert.EqualValues(t, 2, tree["sentences"])
	assert.Contains(t, tree, "depparse")
	assert.Contains(t, tree["depparse"].(map[string]any), "duration_ms")
}

func TestLogSkipsDisabledLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	_, s := Start(context.Background(), "x")
	s.Log(context.Background(), log, slog.LevelDebug)
	assert.Zero(t, buf.Len())
}
