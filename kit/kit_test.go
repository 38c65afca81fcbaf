package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	chained := Chain(noop)(base)

	_, err := chained(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext_HubAndSource(t *testing.T) {
	ctx := context.Background()
	if v := GetHubID(ctx); v != "" {
		t.Fatalf("empty context: got %q", v)
	}

	ctx = WithSourceID(WithHubID(ctx, "riyadh"), "bayt")
	if v := GetHubID(ctx); v != "riyadh" {
		t.Fatalf("hub: got %q", v)
	}
	if v := GetSourceID(ctx); v != "bayt" {
		t.Fatalf("source: got %q", v)
	}
}

func TestContext_Transport_Default(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "cli" {
		t.Fatalf("default transport: got %q, want 'cli'", v)
	}
}

func TestContext_Transport_Set(t *testing.T) {
	ctx := WithTransport(context.Background(), "mcp")
	if v := GetTransport(ctx); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_TraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trc_xyz")
	if v := GetTraceID(ctx); v != "trc_xyz" {
		t.Fatalf("trace_id: got %q", v)
	}
}

func TestLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := Logged(logger, "phoenix_sources")(func(context.Context, any) (any, error) { return 1, nil })
	ctx := WithTraceID(WithTransport(context.Background(), "mcp"), "trc_9")
	if resp, err := ok(ctx, nil); err != nil || resp != 1 {
		t.Fatalf("got %v, %v", resp, err)
	}
	line := buf.String()
	for _, want := range []string{"endpoint=phoenix_sources", "transport=mcp", "trace_id=trc_9", "level=DEBUG"} {
		if !strings.Contains(line, want) {
			t.Errorf("log %q missing %q", line, want)
		}
	}

	buf.Reset()
	errBoom := errors.New("boom")
	bad := Logged(logger, "phoenix_discover")(func(context.Context, any) (any, error) { return nil, errBoom })
	if _, err := bad(context.Background(), nil); !errors.Is(err, errBoom) {
		t.Fatalf("error: got %v", err)
	}
	if line := buf.String(); !strings.Contains(line, "level=WARN") || !strings.Contains(line, "error=boom") {
		t.Errorf("failure log: %q", line)
	}
}
