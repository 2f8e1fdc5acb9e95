package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dasmtools/jitdiff/internal/observability"
)

func TestRunStats_DumpLogsCollectedValues(t *testing.T) {
	t.Parallel()

	rs, err := observability.NewRunStats()
	require.NoError(t, err)

	ctx := context.Background()

	rs.AddFilesParsed(ctx, observability.SideBase, 3)
	rs.AddFilesParsed(ctx, observability.SideDiff, 2)
	rs.AddMethodsCompared(ctx, 40)

	stop := rs.TimePhase(ctx, observability.PhaseParse)
	stop()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	rs.Dump(ctx, logger)

	out := buf.String()
	assert.Contains(t, out, "jitdiff.files.parsed")
	assert.Contains(t, out, "side=base")
	assert.Contains(t, out, "side=diff")
	assert.Contains(t, out, "jitdiff.methods.compared")
	assert.Contains(t, out, "value=40")
	assert.Contains(t, out, "jitdiff.phase.duration.seconds")
	assert.Contains(t, out, "phase=parse")
}

func TestRunStats_DumpWithoutRecordsIsQuiet(t *testing.T) {
	t.Parallel()

	rs, err := observability.NewRunStats()
	require.NoError(t, err)

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rs.Dump(context.Background(), logger)

	assert.NotContains(t, buf.String(), "value=")
}
