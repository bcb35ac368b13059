package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"
)

// MockRedisClient is an in-memory implementation of RedisClient for testing.
// Keys honor TTLs against the real clock; streams record published messages
// per stream name so tests can assert on them.
type MockRedisClient struct {
	mu         sync.Mutex
	Data       map[string]mockEntry
	Published  map[string][]StreamMessage
	StreamData []StreamMessage
	Acked      []string
	PublishErr error
	GetErr     error
	SetErr     error
	MGetErr    error
	ConsumeErr error
	nextID     int
}

type mockEntry struct {
	value     string
	expiresAt time.Time
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data:      make(map[string]mockEntry),
		Published: make(map[string][]StreamMessage),
	}
}

func (m *MockRedisClient) PublishToStream(ctx context.Context, stream string, values map[string]interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.Published[stream] = append(m.Published[stream], StreamMessage{
		ID:     fmt.Sprintf("%d-%d", time.Now().UnixMilli(), m.nextID),
		Stream: stream,
		Values: values,
	})
	return nil
}

func (m *MockRedisClient) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error) {
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan StreamMessage, len(m.StreamData))
	for _, msg := range m.StreamData {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Acked = append(m.Acked, id)
	return nil
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := mockEntry{value: string(jsonData)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.Data[key] = entry
	return nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetErr != nil {
		return "", m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.liveEntry(key)
	if !ok {
		return "", nil
	}
	return entry.value, nil
}

func (m *MockRedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if m.GetErr != nil {
		return m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.liveEntry(key)
	if !ok {
		return nil
	}
	return json.Unmarshal([]byte(entry.value), dest)
}

func (m *MockRedisClient) MGet(ctx context.Context, keys []string) ([]string, error) {
	if m.MGetErr != nil {
		return nil, m.MGetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(keys))
	for i, key := range keys {
		if entry, ok := m.liveEntry(key); ok {
			result[i] = entry.value
		}
	}
	return result, nil
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
	return nil
}

func (m *MockRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	if m.GetErr != nil {
		return false, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.liveEntry(key)
	return ok, nil
}

func (m *MockRedisClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.Data {
		if _, ok := m.liveEntry(key); !ok {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MockRedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.liveEntry(key)
	if !ok {
		return -2 * time.Second, nil
	}
	if entry.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return time.Until(entry.expiresAt), nil
}

func (m *MockRedisClient) Close() error {
	return nil
}

// liveEntry returns the entry if present and not expired; expired entries are
// dropped lazily, mirroring Redis semantics closely enough for tests.
func (m *MockRedisClient) liveEntry(key string) (mockEntry, bool) {
	entry, ok := m.Data[key]
	if !ok {
		return mockEntry{}, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.Data, key)
		return mockEntry{}, false
	}
	return entry, true
}
