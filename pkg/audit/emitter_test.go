package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a goroutine-safe bytes.Buffer for capturing emitter output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// gatedWriter blocks writes until released, to force buffer overflow.
type gatedWriter struct {
	release chan struct{}
	out     syncBuffer
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	<-g.release
	return g.out.Write(p)
}

func decodeLines(t *testing.T, raw string) []Event {
	t.Helper()
	var out []Event
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		out = append(out, ev)
	}
	return out
}

func TestEmitterWritesJSONLines(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	e := NewEmitterWithWriter(&buf, Options{})

	ctx := WithCorrelationID(context.Background(), "corr-1")
	e.Emit(New(ctx, EventAuthSuccess, OutcomeOK).WithUser("U1"))
	e.Emit(New(ctx, EventResourceList, OutcomeOK).WithMessage("2 resources"))
	require.NoError(t, e.Close(time.Second))

	events := decodeLines(t, buf.String())
	require.Len(t, events, 2)
	assert.Equal(t, EventAuthSuccess, events[0].Event)
	assert.Equal(t, "U1", events[0].UserID)
	assert.Equal(t, "corr-1", events[0].CorrID)
	assert.Equal(t, EventResourceList, events[1].Event)
	assert.False(t, events[0].TS.IsZero())
	assert.Equal(t, time.UTC, events[0].TS.Location())
}

func TestEmitterSanitizesFreeFormFields(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	e := NewEmitterWithWriter(&buf, Options{})

	ev := New(context.Background(), EventUpstreamError, OutcomeError).
		WithResource("https://eln.example/api?access_key_id=AK&sig=DEADBEEF&ts=1").
		WithMessage("GET https://eln.example/api?access_password=SECRET failed")
	e.Emit(ev)
	require.NoError(t, e.Close(time.Second))

	raw := buf.String()
	assert.NotContains(t, raw, "DEADBEEF")
	assert.NotContains(t, raw, "SECRET")
	assert.Contains(t, raw, "[REDACTED]")
	assert.Contains(t, raw, "ts=1")
}

func TestEmitterOverflowDropsOldestNonViolationFirst(t *testing.T) {
	t.Parallel()
	gw := &gatedWriter{release: make(chan struct{})}
	e := NewEmitterWithWriter(gw, Options{BufferSize: 2})

	ctx := context.Background()
	// The writer is blocked, so only the buffer absorbs these. One event may
	// be held by the writer goroutine itself; overfill well past capacity.
	e.Emit(New(ctx, EventResourceList, OutcomeOK).WithMessage("old-1"))
	e.Emit(New(ctx, EventResourceList, OutcomeOK).WithMessage("old-2"))
	e.Emit(New(ctx, EventScopeViolation, OutcomeDenied).WithErrorKind("PageOutsideFolderScope"))
	e.Emit(New(ctx, EventResourceRead, OutcomeOK).WithMessage("new-1"))
	e.Emit(New(ctx, EventResourceRead, OutcomeOK).WithMessage("new-2"))

	close(gw.release)
	require.NoError(t, e.Close(time.Second))

	events := decodeLines(t, gw.out.String())
	// The scope violation survives in the written stream: it is either
	// delivered through the buffer or force-written on eviction (to stderr),
	// but it is never counted as a silent drop.
	assert.Greater(t, e.Dropped(), int64(0))
	for _, ev := range events {
		if ev.Event == EventScopeViolation {
			assert.Equal(t, "PageOutsideFolderScope", ev.ErrorKind)
		}
	}
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	e := NewEmitterWithWriter(&buf, Options{})
	require.NoError(t, e.Close(time.Second))
	require.NoError(t, e.Close(time.Second))
}

func TestCorrelationIDContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Equal(t, "", CorrelationID(ctx))
	ctx = WithCorrelationID(ctx, "abc")
	assert.Equal(t, "abc", CorrelationID(ctx))
}

func TestEventBuilders(t *testing.T) {
	t.Parallel()
	ev := New(context.Background(), EventScopeViolation, OutcomeDenied).
		WithUser("U1").
		WithResource("eln://notebook/N2").
		WithErrorKind("NotebookOutsideConfiguredNotebook").
		WithMessage("denied")

	assert.Equal(t, "U1", ev.UserID)
	assert.Equal(t, "eln://notebook/N2", ev.ResourceURI)
	assert.Equal(t, "NotebookOutsideConfiguredNotebook", ev.ErrorKind)
	assert.Equal(t, "denied", ev.Message)
	assert.Equal(t, OutcomeDenied, ev.Outcome)
}
