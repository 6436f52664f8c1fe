package history

import (
	"sync"
	"time"
)

// memoryStore Redis 不可用时的进程内兜底，重启即丢失。
// 每个会话最多保留 max 条，超过 ttl 未写入的会话在下次访问时清除。
type memoryStore struct {
	mu       sync.RWMutex
	max      int
	ttl      time.Duration
	now      func() time.Time
	messages map[string][]Message
	touched  map[string]time.Time
	states   map[string]map[string]any
}

func newMemoryStore(max int, ttl time.Duration) *memoryStore {
	return &memoryStore{
		max:      max,
		ttl:      ttl,
		now:      time.Now,
		messages: make(map[string][]Message),
		touched:  make(map[string]time.Time),
		states:   make(map[string]map[string]any),
	}
}

func (m *memoryStore) append(thread string, msgs ...Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(thread)
	list := append(m.messages[thread], msgs...)
	if m.max > 0 && len(list) > m.max {
		list = append([]Message(nil), list[len(list)-m.max:]...)
	}
	m.messages[thread] = list
	m.touched[thread] = m.now()
}

func (m *memoryStore) list(thread string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(thread)
	return append([]Message(nil), m.messages[thread]...)
}

// expireLocked 清除过期会话，调用方持有写锁
func (m *memoryStore) expireLocked(thread string) {
	at, ok := m.touched[thread]
	if !ok || m.ttl <= 0 || m.now().Sub(at) < m.ttl {
		return
	}
	delete(m.messages, thread)
	delete(m.touched, thread)
}

func (m *memoryStore) clear(thread string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, thread)
	delete(m.touched, thread)
}

func (m *memoryStore) setState(thread string, state map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[thread] = state
}

func (m *memoryStore) state(thread string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[thread]
}

func (m *memoryStore) clearState(thread string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, thread)
}
