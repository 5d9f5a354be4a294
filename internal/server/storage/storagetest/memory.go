// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/server/storage"
)

// Object is a stored object and its settings.
type Object struct {
	Data                    []byte
	StorageClass            string
	WebsiteRedirectLocation string
	Private                 bool
}

type location struct {
	region, key string
}

// MemoryStore keeps objects per region in memory. Fail, when set, is consulted
// before every operation and its error returned as is.
type MemoryStore struct {
	Fail func(op, region, key string) error

	mu      sync.Mutex
	objects map[location]*Object
	calls   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[location]*Object{}}
}

// Put stores data as an uploader holding a PUT URL would.
func (m *MemoryStore) Put(region, key string, data []byte) {
	m.PutObject(region, key, Object{Data: data, StorageClass: storage.StorageClassStandard})
}

func (m *MemoryStore) PutObject(region, key string, obj Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := obj
	o.Data = append([]byte(nil), obj.Data...)
	m.objects[location{region, key}] = &o
}

// Object returns a copy of the stored object.
func (m *MemoryStore) Object(region, key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[location{region, key}]
	if !ok {
		return Object{}, false
	}
	return *o, true
}

// Calls returns the operations performed so far, formatted as "op region key".
func (m *MemoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MemoryStore) begin(op, region, key string) error {
	m.calls = append(m.calls, op+" "+region+" "+key)
	if m.Fail != nil {
		return m.Fail(op, region, key)
	}
	return nil
}

func (m *MemoryStore) PresignPut(ctx context.Context, region, key string, expiresIn time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("presign-put", region, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s.storage.test/%s?method=PUT&expires=%d", region, key, int(expiresIn.Seconds())), nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, region, key string, expiresIn time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("presign-get", region, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s.storage.test/%s?method=GET&expires=%d", region, key, int(expiresIn.Seconds())), nil
}

func (m *MemoryStore) Head(ctx context.Context, region, key string) (*storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("head", region, key); err != nil {
		return nil, err
	}
	o, ok := m.objects[location{region, key}]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.ObjectInfo{
		Size:                    int64(len(o.Data)),
		StorageClass:            o.StorageClass,
		WebsiteRedirectLocation: o.WebsiteRedirectLocation,
	}, nil
}

func (m *MemoryStore) Open(ctx context.Context, region, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("open", region, key); err != nil {
		return nil, err
	}
	o, ok := m.objects[location{region, key}]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), o.Data...))), nil
}

func (m *MemoryStore) Delete(ctx context.Context, region, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete", region, key); err != nil {
		return err
	}
	delete(m.objects, location{region, key})
	return nil
}

func (m *MemoryStore) Copy(ctx context.Context, srcRegion, dstRegion, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("copy", srcRegion+">"+dstRegion, key); err != nil {
		return err
	}
	src, ok := m.objects[location{srcRegion, key}]
	if !ok {
		return storage.ErrObjectNotFound
	}
	m.objects[location{dstRegion, key}] = &Object{
		Data:         append([]byte(nil), src.Data...),
		StorageClass: storage.StorageClassStandard,
		Private:      src.Private,
	}
	return nil
}

func (m *MemoryStore) SetPrivate(ctx context.Context, region, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("set-private", region, key); err != nil {
		return err
	}
	o, ok := m.objects[location{region, key}]
	if !ok {
		return storage.ErrObjectNotFound
	}
	o.Private = true
	return nil
}

var _ storage.Store = (*MemoryStore)(nil)
