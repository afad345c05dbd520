// Package objectstore stores and retrieves template images.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/netx"
	"github.com/google/uuid"
)

var (
	// ErrPresignUnsupported is returned by stores that cannot hand out upload URLs.
	ErrPresignUnsupported = errors.New("presigned uploads are not supported by this store")
	// ErrHostNotAllowed is returned for template URLs whose host is not allow-listed.
	ErrHostNotAllowed = errors.New("template host is not allowed")
)

const maxRedirects = 10

// Store is a flat key/value blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Presigner issues time-limited URLs for direct client transfers.
type Presigner interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// NewTemplateKey returns a fresh key under templates/<yyyy>/<m>/<d>/.
func NewTemplateKey(now time.Time, ext string) string {
	return fmt.Sprintf("templates/%d/%d/%d/%v%s", now.Year(), now.Month(), now.Day(), uuid.New(), ext)
}

// MaxTemplateSize bounds template downloads.
const MaxTemplateSize = 20 << 20

// Resolver loads template bytes from an image path, which is either an
// absolute http(s) URL or a key in the store. URLs are fetched only when
// their host is allow-listed, redirects included; with no hosts configured
// every URL is refused.
type Resolver struct {
	store  Store
	client *http.Client
	hosts  []string
}

// NewResolver builds a Resolver over store. A nil client gets a 30 second
// timeout. Each allowed host matches exactly, case-insensitively; an entry
// starting with "." matches any subdomain of the rest.
func NewResolver(store Store, client *http.Client, allowedHosts ...string) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	r := &Resolver{store: store}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.hosts = append(r.hosts, h)
		}
	}

	c := *client
	next := client.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if !r.allowed(req.URL) {
			return fmt.Errorf("redirect to %s: %w", req.URL.Host, ErrHostNotAllowed)
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	r.client = &c
	return r
}

func (r *Resolver) Fetch(ctx context.Context, path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, err
		}
		if !r.allowed(u) {
			return nil, fmt.Errorf("%s: %w", u.Host, ErrHostNotAllowed)
		}
		return netx.Fetch(ctx, r.client, path, MaxTemplateSize)
	}
	if r.store == nil {
		return nil, fmt.Errorf("no object store for %q: %w", path, common.ErrorNotFound)
	}
	return r.store.Get(ctx, strings.TrimPrefix(path, "/"))
}

func (r *Resolver) allowed(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, h := range r.hosts {
		if h == host {
			return true
		}
		if strings.HasPrefix(h, ".") && strings.HasSuffix(host, h) {
			return true
		}
	}
	return false
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}
