package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/sony/gobreaker"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// HTTPObjectStore stores file bytes via an S3-compatible (or similar)
// HTTP object storage API.
type HTTPObjectStore struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewHTTPObjectStore(endpoint string, client *http.Client, onStateChange StateChangeObserver) *HTTPObjectStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPObjectStore{
		endpoint: endpoint,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings("object_storage", onStateChange)),
	}
}

func (s *HTTPObjectStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPut, s.endpoint+"/"+key, strings.NewReader(string(data)))
		if rerr != nil {
			return nil, rerr
		}
		resp, derr := s.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("object put failed: status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return cperrors.NewExternalService("object_storage", err.Error(), err, 0, 0)
	}
	return nil
}

func (s *HTTPObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/"+key, nil)
		if rerr != nil {
			return nil, rerr
		}
		resp, derr := s.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, cperrors.NewNotFound(fmt.Sprintf("object %s", key))
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("object get failed: status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if cperrors.CodeOf(err) == cperrors.CodeNotFound {
			return nil, err
		}
		return nil, cperrors.NewExternalService("object_storage", err.Error(), err, 0, 0)
	}
	return v.([]byte), nil
}

func (s *HTTPObjectStore) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodDelete, s.endpoint+"/"+key, nil)
		if rerr != nil {
			return nil, rerr
		}
		resp, derr := s.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
			return nil, fmt.Errorf("object delete failed: status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return cperrors.NewExternalService("object_storage", err.Error(), err, 0, 0)
	}
	return nil
}

func (s *HTTPObjectStore) Size(ctx context.Context, tenantPrefix string) (int64, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/_size?prefix="+tenantPrefix, nil)
		if rerr != nil {
			return nil, rerr
		}
		resp, derr := s.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("size query failed: status %d", resp.StatusCode)
		}
		b, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return nil, rerr
		}
		return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	})
	if err != nil {
		return 0, cperrors.NewExternalService("object_storage", err.Error(), err, 0, 0)
	}
	return v.(int64), nil
}

// InMemoryObjectStore is a test double backed by a mutex-guarded map.
type InMemoryObjectStore struct {
	mu   sync.Mutex
	data map[string][]byte
	Err  error
}

func NewInMemoryObjectStore() *InMemoryObjectStore {
	return &InMemoryObjectStore{data: map[string][]byte{}}
}

func (m *InMemoryObjectStore) Put(ctx context.Context, key string, data []byte) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *InMemoryObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cperrors.NewNotFound(fmt.Sprintf("object %s", key))
	}
	return v, nil
}

func (m *InMemoryObjectStore) Delete(ctx context.Context, key string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *InMemoryObjectStore) Size(ctx context.Context, tenantPrefix string) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for k, v := range m.data {
		if strings.HasPrefix(k, tenantPrefix) {
			total += int64(len(v))
		}
	}
	return total, nil
}
