// Package trace buffers governor spans (fail-safe halts, heal failures,
// rotations) and exports them on an explicit Flush.
//
// There is no background timer: the caller flushes at the end of each hub
// session. Exporters are the local SQLite Store and the HTTP RemoteStore.
//
//	buf := trace.NewBuffer(100, trace.NewStore(db))
//	buf.Record(ctx, trace.Span{Name: "heal_failure", ...})
//	defer buf.Flush(ctx)
package trace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Sm36384/Phoenix/kit"
)

// Span is a single trace record.
type Span struct {
	TraceID   string            `json:"trace_id"`
	Name      string            `json:"name"`
	HubID     string            `json:"hub_id,omitempty"`
	SourceID  string            `json:"source_id,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp int64             `json:"timestamp"` // unix milliseconds
}

// Exporter persists a batch of spans.
type Exporter interface {
	Export(ctx context.Context, spans []Span) error
}

// Buffer queues spans in memory until Flush. When full, the oldest span is
// dropped. Safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	spans     []Span
	capacity  int
	dropped   int
	exporters []Exporter
	now       func() time.Time
}

// NewBuffer creates a buffer holding at most capacity spans (100 if <= 0).
func NewBuffer(capacity int, exporters ...Exporter) *Buffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &Buffer{capacity: capacity, exporters: exporters, now: time.Now}
}

// Record queues a span. TraceID, HubID and SourceID are filled from ctx when
// empty; Timestamp defaults to now.
func (b *Buffer) Record(ctx context.Context, s Span) {
	if b == nil {
		return
	}
	if s.TraceID == "" {
		s.TraceID = kit.GetTraceID(ctx)
	}
	if s.HubID == "" {
		s.HubID = kit.GetHubID(ctx)
	}
	if s.SourceID == "" {
		s.SourceID = kit.GetSourceID(ctx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s.Timestamp == 0 {
		s.Timestamp = b.now().UnixMilli()
	}
	if len(b.spans) >= b.capacity {
		b.spans = b.spans[1:]
		b.dropped++
	}
	b.spans = append(b.spans, s)
}

// Len returns the number of spans waiting for Flush.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.spans)
}

// Flush hands every queued span to each exporter and empties the buffer.
// Exporter errors are logged and joined; spans are not re-queued.
func (b *Buffer) Flush(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	batch := b.spans
	dropped := b.dropped
	b.spans = nil
	b.dropped = 0
	b.mu.Unlock()

	if dropped > 0 {
		slog.WarnContext(ctx, "trace: buffer overflow", "dropped", dropped)
	}
	if len(batch) == 0 {
		return nil
	}

	var errs []error
	for _, e := range b.exporters {
		if err := e.Export(ctx, batch); err != nil {
			slog.ErrorContext(ctx, "trace: export failed", "error", err, "spans", len(batch))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
