package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// TenantRouter maps tenant ids to their chat databases. Handles are opened
// lazily on first access and cached for the process lifetime; a tenant's
// store is never handed out for any other tenant id.
type TenantRouter struct {
	baseDir string

	mu     sync.Mutex
	stores map[string]ChatStore
	open   func(path string) (ChatStore, error)
}

// NewTenantRouter creates the chat database directory if missing.
func NewTenantRouter(baseDir string) (*TenantRouter, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("chat db dir required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chat db dir: %w", err)
	}
	return &TenantRouter{
		baseDir: baseDir,
		stores:  make(map[string]ChatStore),
		open: func(path string) (ChatStore, error) {
			return OpenChatStore(path)
		},
	}, nil
}

// Resolve returns the tenant's chat store, opening and initializing it on
// first access. Malformed tenant ids and inaccessible storage locations
// surface as ErrTenantResolution.
func (r *TenantRouter) Resolve(tenantID string) (ChatStore, error) {
	if _, err := uuid.Parse(tenantID); err != nil {
		return nil, fmt.Errorf("%w: malformed tenant id %q", ErrTenantResolution, tenantID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[tenantID]; ok {
		return s, nil
	}
	s, err := r.open(r.path(tenantID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTenantResolution, err)
	}
	r.stores[tenantID] = s
	return s, nil
}

// Remove closes the tenant's handle and deletes its database file. The
// router lock is held across close and delete so no concurrent Resolve can
// observe a half-destroyed store.
func (r *TenantRouter) Remove(tenantID string) error {
	if _, err := uuid.Parse(tenantID); err != nil {
		return fmt.Errorf("%w: malformed tenant id %q", ErrTenantResolution, tenantID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[tenantID]; ok {
		if err := s.Close(); err != nil {
			return fmt.Errorf("close tenant store: %w", err)
		}
		delete(r.stores, tenantID)
	}
	if err := os.Remove(r.path(tenantID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove tenant store: %w", err)
	}
	return nil
}

// Close releases every cached handle. Used on process shutdown.
func (r *TenantRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, s := range r.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store %s: %w", id, err)
		}
		delete(r.stores, id)
	}
	return firstErr
}

func (r *TenantRouter) path(tenantID string) string {
	return filepath.Join(r.baseDir, tenantID+".db")
}
