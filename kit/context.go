package kit

import "context"

type contextKey string

const (
	TraceIDKey   contextKey = "kit_trace_id"
	HubIDKey     contextKey = "kit_hub_id"
	SourceIDKey  contextKey = "kit_source_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp", "cli"
)

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithHubID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, HubIDKey, id)
}
func GetHubID(ctx context.Context) string {
	v, _ := ctx.Value(HubIDKey).(string)
	return v
}

func WithSourceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SourceIDKey, id)
}
func GetSourceID(ctx context.Context) string {
	v, _ := ctx.Value(SourceIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "cli"
}
