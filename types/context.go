package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID  contextKey = "trace_id"
	keyUserID   contextKey = "user_id"
	keyAccount  contextKey = "account"
	keyRealName contextKey = "realname"
	keyToken    contextKey = "token"
)

// Identity 当前请求用户
type Identity struct {
	UserID   string `json:"userId"`
	Account  string `json:"account"`
	RealName string `json:"realname"`
}

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithUserID adds user ID to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts user ID from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithToken stores the raw session token forwarded to upstream engines.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyToken, token)
}

// Token extracts the raw session token.
func Token(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyToken).(string)
	return v, ok && v != ""
}

// WithIdentity stores all identity fields.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, keyUserID, id.UserID)
	ctx = context.WithValue(ctx, keyAccount, id.Account)
	return context.WithValue(ctx, keyRealName, id.RealName)
}

// IdentityFrom extracts the identity. ok is false when no user id is set.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	var id Identity
	id.UserID, _ = ctx.Value(keyUserID).(string)
	id.Account, _ = ctx.Value(keyAccount).(string)
	id.RealName, _ = ctx.Value(keyRealName).(string)
	return id, id.UserID != ""
}
