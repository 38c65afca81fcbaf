package trace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Sm36384/Phoenix/dbopen"
	"github.com/Sm36384/Phoenix/kit"
)

type memExporter struct {
	mu    sync.Mutex
	spans []Span
	err   error
}

func (m *memExporter) Export(_ context.Context, spans []Span) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, spans...)
	return m.err
}

func TestBuffer_NothingExportedBeforeFlush(t *testing.T) {
	exp := &memExporter{}
	buf := NewBuffer(10, exp)
	buf.Record(context.Background(), Span{Name: "fail_safe_halt"})

	if len(exp.spans) != 0 {
		t.Fatal("span exported before Flush")
	}
	if buf.Len() != 1 {
		t.Fatalf("len: got %d, want 1", buf.Len())
	}
	if err := buf.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(exp.spans) != 1 || buf.Len() != 0 {
		t.Errorf("after flush: exported %d, buffered %d", len(exp.spans), buf.Len())
	}
}

func TestBuffer_FillsFromContext(t *testing.T) {
	exp := &memExporter{}
	buf := NewBuffer(10, exp)
	ctx := kit.WithTraceID(kit.WithSourceID(kit.WithHubID(context.Background(), "dubai"), "bayt"), "trc_1")
	buf.Record(ctx, Span{Name: "heal_failure"})
	_ = buf.Flush(ctx)

	got := exp.spans[0]
	if got.TraceID != "trc_1" || got.HubID != "dubai" || got.SourceID != "bayt" {
		t.Errorf("context fields: got %+v", got)
	}
	if got.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestBuffer_DropsOldest(t *testing.T) {
	exp := &memExporter{}
	buf := NewBuffer(2, exp)
	for _, n := range []string{"a", "b", "c"} {
		buf.Record(context.Background(), Span{Name: n})
	}
	_ = buf.Flush(context.Background())
	if len(exp.spans) != 2 || exp.spans[0].Name != "b" || exp.spans[1].Name != "c" {
		t.Errorf("got %+v, want [b c]", exp.spans)
	}
}

func TestBuffer_ExporterErrorJoined(t *testing.T) {
	boom := errors.New("collector down")
	ok := &memExporter{}
	buf := NewBuffer(5, &memExporter{err: boom}, ok)
	buf.Record(context.Background(), Span{Name: "x"})

	if err := buf.Flush(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v, want collector error", err)
	}
	if len(ok.spans) != 1 {
		t.Error("healthy exporter should still receive spans")
	}
}

func TestStore_ExportAndRecent(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	st := NewStore(db)
	ctx := context.Background()

	err := st.Export(ctx, []Span{
		{Name: "fail_safe_halt", HubID: "riyadh", Attrs: map[string]string{"reason": "captcha"}, Timestamp: 1},
		{Name: "heal_failure", Error: "verification failed", Timestamp: 2},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	got, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if got[0].Name != "heal_failure" {
		t.Errorf("order: got %q first", got[0].Name)
	}
	if got[1].Attrs["reason"] != "captcha" {
		t.Errorf("attrs: got %v", got[1].Attrs)
	}
}

func TestRemoteStore_Posts(t *testing.T) {
	var received []Span
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	rs := NewRemoteStore(srv.URL, srv.Client())
	if err := rs.Export(context.Background(), []Span{{Name: "identity_rotated"}}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(received) != 1 || received[0].Name != "identity_rotated" {
		t.Errorf("received: %+v", received)
	}
}

func TestRemoteStore_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewRemoteStore(srv.URL, nil).Export(context.Background(), []Span{{Name: "x"}}); err == nil {
		t.Fatal("expected error on 500")
	}
}
