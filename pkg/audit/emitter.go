package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benchnote/eln-mcp/pkg/sanitize"
)

// DefaultBufferSize is the capacity of the in-memory event buffer.
const DefaultBufferSize = 1024

// Options configures the emitter.
type Options struct {
	// FilePath is the audit sink. Empty means stderr.
	FilePath string
	// BufferSize bounds the in-memory queue. Zero means DefaultBufferSize.
	BufferSize int
	// Strict terminates the process when a scope.violation event has to be
	// dropped from the buffer.
	Strict bool
}

// Emitter writes audit events to its sink from a background goroutine.
// Emit never blocks the caller. On buffer overflow the oldest
// non-scope.violation events are discarded first; scope.violation events are
// never discarded silently — they are written synchronously to stderr, and
// in strict mode the process terminates.
type Emitter struct {
	ch        chan Event
	sink      io.Writer
	closer    io.Closer
	sanitizer *sanitize.Sanitizer
	strict    bool
	exit      func(int)

	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewEmitter opens the configured sink and starts the background writer.
func NewEmitter(opts Options) (*Emitter, error) {
	var sink io.Writer = os.Stderr
	var closer io.Closer
	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit sink: %w", err)
		}
		sink = f
		closer = f
	}
	e := newEmitter(sink, opts)
	e.closer = closer
	return e, nil
}

// NewEmitterWithWriter starts an emitter over the given sink. Used by tests
// and by callers that manage the sink themselves.
func NewEmitterWithWriter(sink io.Writer, opts Options) *Emitter {
	return newEmitter(sink, opts)
}

func newEmitter(sink io.Writer, opts Options) *Emitter {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	e := &Emitter{
		ch:        make(chan Event, size),
		sink:      sink,
		sanitizer: sanitize.Default(),
		strict:    opts.Strict,
		exit:      os.Exit,
		done:      make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Emitter) run() {
	defer close(e.done)
	enc := json.NewEncoder(e.sink)
	for ev := range e.ch {
		// Encoding an Event cannot fail; a sink write error is best-effort
		// by contract and must not surface to the request path.
		_ = enc.Encode(ev)
	}
}

// Emit queues an event for write-out. All free-form string fields pass
// through the sanitizer first.
func (e *Emitter) Emit(ev Event) {
	ev.ResourceURI = e.sanitizer.QueryParams(ev.ResourceURI)
	ev.Message = e.sanitizer.QueryParams(ev.Message)

	// Bounded number of eviction rounds so a stalled writer cannot spin us.
	for range cap(e.ch) {
		select {
		case e.ch <- ev:
			return
		default:
		}
		select {
		case old := <-e.ch:
			if old.Event == EventScopeViolation {
				e.dropSynchronously(old)
			} else {
				e.dropped.Add(1)
			}
		default:
		}
	}
	if ev.Event == EventScopeViolation {
		e.dropSynchronously(ev)
	} else {
		e.dropped.Add(1)
	}
}

// dropSynchronously writes a scope.violation event straight to stderr when it
// cannot be buffered, and terminates the process in strict mode.
func (e *Emitter) dropSynchronously(ev Event) {
	fmt.Fprintf(os.Stderr, "audit drop: %s corr_id=%s uri=%s kind=%s\n",
		ev.Event, ev.CorrID, ev.ResourceURI, ev.ErrorKind)
	if e.strict {
		e.exit(3)
	}
}

// Dropped returns the number of events discarded due to overflow.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close drains the buffer, waiting up to timeout, then releases the sink.
// No Emit may be called after Close.
func (e *Emitter) Close(timeout time.Duration) error {
	var err error
	e.closeOnce.Do(func() {
		close(e.ch)
		select {
		case <-e.done:
		case <-time.After(timeout):
			err = fmt.Errorf("audit drain timed out after %s", timeout)
		}
		if e.closer != nil {
			if cerr := e.closer.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
