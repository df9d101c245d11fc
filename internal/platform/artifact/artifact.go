// Package artifact stores the CSV snapshots produced after each save. It
// provides a bounded in-memory store served over HTTP for local use and an
// S3-backed store that hands out presigned download links.
package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrMissingKey       = errors.New("artifact key is required")
)

// DefaultRetain is how many snapshots the in-memory store keeps.
const DefaultRetain = 20

// Metadata describes a stored artifact.
type Metadata struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	URL         string    `json:"url"`
}

type stored struct {
	metadata Metadata
	content  []byte
}

// MemoryStore keeps the most recent snapshots in memory. Put returns a path
// under BasePath that Handler serves.
type MemoryStore struct {
	BasePath string

	mu     sync.RWMutex
	retain int
	items  map[string]*stored
	order  []string
	now    func() time.Time
}

// NewMemoryStore returns a MemoryStore that keeps at most retain artifacts.
func NewMemoryStore(basePath string, retain int) *MemoryStore {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &MemoryStore{
		BasePath: basePath,
		retain:   retain,
		items:    make(map[string]*stored),
		now:      time.Now,
	}
}

// Put stores data under key, replacing any artifact with the same key, and
// evicts the oldest artifacts beyond the retention limit.
func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	h := sha256.Sum256(data)
	meta := Metadata{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", h),
		CreatedAt:   s.now().UTC(),
		URL:         s.BasePath + "/" + key,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		s.removeLocked(key)
	}
	s.items[key] = &stored{metadata: meta, content: append([]byte(nil), data...)}
	s.order = append(s.order, key)
	for len(s.order) > s.retain {
		s.removeLocked(s.order[0])
	}
	return meta.URL, nil
}

func (s *MemoryStore) removeLocked(key string) {
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Get returns a reader over the artifact content and its metadata.
func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrArtifactNotFound
	}
	meta := item.metadata
	return io.NopCloser(bytes.NewReader(item.content)), &meta, nil
}

// List returns metadata for every retained artifact, newest first.
func (s *MemoryStore) List(_ context.Context) []Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Metadata, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.metadata)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key > out[j].Key
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Handler serves artifacts held by a MemoryStore.
type Handler struct {
	store *MemoryStore
}

func NewHandler(store *MemoryStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the download and listing endpoints on g. Callers
// decide which middleware guards the group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:key", h.Download)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": h.store.List(c.Request().Context()),
	})
}

func (h *Handler) Download(c echo.Context) error {
	key := c.Param("key")
	rc, meta, err := h.store.Get(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.Key))
	c.Response().Header().Set("ETag", `"`+meta.Hash+`"`)
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
