package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/common"
)

// MemoryStore is an in-process Store used by tests and local development.
// Presigned URLs it produces point at a placeholder host; the bytes never
// leave the process.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]ObjectInfo
	// uploads maps uploadID -> partNumber -> part.
	uploads map[string]map[int32]memoryPart
	nextID  int
}

type memoryPart struct {
	size int64
	etag string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]ObjectInfo),
		uploads: make(map[string]map[int32]memoryPart),
	}
}

func (m *MemoryStore) PresignPut(ctx context.Context, key, contentType string, maxSize int64, ttl time.Duration) (*PresignedRequest, error) {
	return m.presigned("PUT", key, ttl), nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (*PresignedRequest, error) {
	return m.presigned("GET", key, ttl), nil
}

func (m *MemoryStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.objects[key]
	if !ok {
		return &ObjectInfo{Exists: false}, nil
	}
	return &info, nil
}

func (m *MemoryStore) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("mem-upload-%d", m.nextID)
	m.uploads[id] = make(map[int32]memoryPart)
	return id, nil
}

func (m *MemoryStore) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (*PresignedRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[uploadID]; !ok {
		return nil, common.ErrorNotFound
	}
	req := m.presigned("PUT", key, ttl)
	req.URL += fmt.Sprintf("&uploadId=%s&partNumber=%d", url.QueryEscape(uploadID), partNumber)
	return req, nil
}

// PutObject records a direct single-shot write, standing in for the client's
// PUT against the presigned URL.
func (m *MemoryStore) PutObject(key string, size int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	etag := memoryETag(key, size)
	m.objects[key] = ObjectInfo{Exists: true, Size: size, ETag: etag}
	return etag
}

// PutPart records one uploaded part, standing in for the client's PUT against
// a presigned part URL, and returns the part's ETag.
func (m *MemoryStore) PutPart(uploadID string, partNumber int32, size int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.uploads[uploadID]
	if !ok {
		return "", common.ErrorNotFound
	}
	etag := memoryETag(fmt.Sprintf("%s/%d", uploadID, partNumber), size)
	parts[partNumber] = memoryPart{size: size, etag: etag}
	return etag, nil
}

func (m *MemoryStore) CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uploaded, ok := m.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("%w: unknown upload %s", common.ErrorNotFound, uploadID)
	}

	sorted := make([]CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var total int64
	for _, p := range sorted {
		stored, ok := uploaded[p.PartNumber]
		if !ok || stored.etag != p.ETag {
			return "", fmt.Errorf("part %d does not match an uploaded part", p.PartNumber)
		}
		total += stored.size
	}

	etag := memoryETag(key, total)
	m.objects[key] = ObjectInfo{Exists: true, Size: total, ETag: etag}
	delete(m.uploads, uploadID)
	return etag, nil
}

func (m *MemoryStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	return nil
}

func (m *MemoryStore) presigned(method, key string, ttl time.Duration) *PresignedRequest {
	return &PresignedRequest{
		URL:       "http://objectstore.local/" + key + "?presigned=1",
		Method:    method,
		ExpiresAt: time.Now().Add(ttl).Truncate(time.Second),
	}
}

func memoryETag(key string, size int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", key, size)))
	return hex.EncodeToString(sum[:8])
}
