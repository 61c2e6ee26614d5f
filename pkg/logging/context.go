package logging

import (
	"context"
)

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ChannelIDKey   = "channel_id"
	RouterIDKey    = "router_id"
	ServiceNameKey = "service_name"
)

type contextKey string

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey(TraceIDKey), traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, contextKey(MessageIDKey), messageID)
}

func WithChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, contextKey(ChannelIDKey), channelID)
}

func WithRouterID(ctx context.Context, routerID string) context.Context {
	return context.WithValue(ctx, contextKey(RouterIDKey), routerID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, contextKey(ServiceNameKey), serviceName)
}

func value(ctx context.Context, key string) string {
	if v, ok := ctx.Value(contextKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return value(ctx, TraceIDKey)
}

func GetChannelID(ctx context.Context) string {
	return value(ctx, ChannelIDKey)
}

func GetRouterID(ctx context.Context) string {
	return value(ctx, RouterIDKey)
}

func GetServiceName(ctx context.Context) string {
	return value(ctx, ServiceNameKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	for _, key := range []string{TraceIDKey, ChannelIDKey, RouterIDKey, MessageIDKey, ServiceNameKey} {
		if v := value(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
