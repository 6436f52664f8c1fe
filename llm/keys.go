package llm

import "context"

// KeyProvider 返回当前有效的 API Key
type KeyProvider interface {
	APIKey(ctx context.Context) string
}

// StaticKey 固定 API Key
type StaticKey string

// APIKey implements KeyProvider.
func (k StaticKey) APIKey(context.Context) string { return string(k) }
