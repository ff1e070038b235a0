package archive

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/openportal/datainsight/internal/errs"
)

// Memory is an in-process archive.Store for tests and deployments that
// run without an object store.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data []byte
	info ObjectInfo
}

// NewMemory returns an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Put(_ context.Context, key, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := append([]byte(nil), data...)
	m.objects[key] = memObject{
		data: stored,
		info: ObjectInfo{
			Key:          key,
			Size:         int64(len(stored)),
			ContentType:  contentType,
			ETag:         fmt.Sprintf("%x", md5.Sum(stored)),
			LastModified: time.Now().UTC(),
		},
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "archive object not found")
	}
	info := obj.info
	return &memHandle{
		ReadCloser: io.NopCloser(bytes.NewReader(obj.data)),
		info:       &info,
	}, nil
}

func (m *Memory) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "archive object not found")
	}
	info := obj.info
	return &info, nil
}

type memHandle struct {
	io.ReadCloser
	info *ObjectInfo
}

func (h *memHandle) Info() *ObjectInfo {
	return h.info
}
