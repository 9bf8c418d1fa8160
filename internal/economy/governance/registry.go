package governance

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agoramesh/agora-backend/internal/economy/types"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

var (
	ErrProtocolNotFound  = errors.New("protocol not found")
	ErrProtocolImmutable = errors.New("protocol is immutable")
)

// Registry holds the named network protocols and their version history.
// Approved proposals apply here; the prior version is archived in the
// history. Immutable protocols can never be updated, regardless of votes.
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]*types.ProtocolInfo
	logger    logging.Logger
}

// NewRegistry creates an empty protocol registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		protocols: make(map[string]*types.ProtocolInfo),
		logger:    logger.With("component", "protocol_registry"),
	}
}

// Register adds or overwrites a protocol definition.
func (r *Registry) Register(name, version string, immutable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protocols[name] = &types.ProtocolInfo{
		Name:      name,
		Version:   version,
		Immutable: immutable,
		UpdatedAt: time.Now().UTC(),
	}
}

// Get returns a copy of the protocol definition.
func (r *Registry) Get(name string) (types.ProtocolInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, exists := r.protocols[name]
	if !exists {
		return types.ProtocolInfo{}, false
	}
	return *p, true
}

// List returns copies of all protocol definitions.
func (r *Registry) List() []types.ProtocolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ProtocolInfo, 0, len(r.protocols))
	for _, p := range r.protocols {
		out = append(out, *p)
	}
	return out
}

// Apply updates a protocol to a new version, archiving the prior version in
// the history. Immutable protocols are never updated.
func (r *Registry) Apply(name, newVersion string) (oldVersion string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.protocols[name]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrProtocolNotFound, name)
	}
	if p.Immutable {
		return "", fmt.Errorf("%w: %s", ErrProtocolImmutable, name)
	}

	oldVersion = p.Version
	p.VersionHistory = append(p.VersionHistory, oldVersion)
	p.Version = newVersion
	p.UpdatedAt = time.Now().UTC()

	r.logger.Info("Protocol updated", "name", name, "old_version", oldVersion, "new_version", newVersion)
	return oldVersion, nil
}

// Snapshot captures the registry for persistence.
func (r *Registry) Snapshot() []types.ProtocolInfo {
	return r.List()
}

// Restore replaces the registry contents from a persisted snapshot.
func (r *Registry) Restore(protocols []types.ProtocolInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protocols = make(map[string]*types.ProtocolInfo, len(protocols))
	for i := range protocols {
		p := protocols[i]
		r.protocols[p.Name] = &p
	}
}
