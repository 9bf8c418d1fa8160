package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoramesh/agora-backend/pkg/logging"
)

func TestRegistryApplyArchivesHistory(t *testing.T) {
	r := NewRegistry(logging.NewNoOpLogger())
	r.Register("task-allocation", "1.0.0", false)

	old, err := r.Apply("task-allocation", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", old)

	old, err = r.Apply("task-allocation", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", old)

	p, ok := r.Get("task-allocation")
	require.True(t, ok)
	assert.Equal(t, "2.0.0", p.Version)
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, p.VersionHistory)
}

func TestRegistryApplyImmutable(t *testing.T) {
	r := NewRegistry(logging.NewNoOpLogger())
	r.Register("identity", "1.0.0", true)

	_, err := r.Apply("identity", "2.0.0")
	assert.ErrorIs(t, err, ErrProtocolImmutable)

	p, ok := r.Get("identity")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", p.Version)
	assert.Empty(t, p.VersionHistory)
}

func TestRegistryApplyUnknown(t *testing.T) {
	r := NewRegistry(logging.NewNoOpLogger())

	_, err := r.Apply("ghost", "1.0.0")
	assert.ErrorIs(t, err, ErrProtocolNotFound)
}

func TestRegistrySnapshotRestore(t *testing.T) {
	r := NewRegistry(logging.NewNoOpLogger())
	r.Register("task-allocation", "1.0.0", false)
	r.Register("identity", "1.0.0", true)
	_, err := r.Apply("task-allocation", "1.1.0")
	require.NoError(t, err)

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 2)

	restored := NewRegistry(logging.NewNoOpLogger())
	restored.Restore(snapshot)

	p, ok := restored.Get("task-allocation")
	require.True(t, ok)
	assert.Equal(t, "1.1.0", p.Version)
	assert.Equal(t, []string{"1.0.0"}, p.VersionHistory)

	p, ok = restored.Get("identity")
	require.True(t, ok)
	assert.True(t, p.Immutable)
}

// Get must return a copy; mutating the returned value must not leak back
// into the registry.
func TestRegistryGetIsolation(t *testing.T) {
	r := NewRegistry(logging.NewNoOpLogger())
	r.Register("task-allocation", "1.0.0", false)

	p, ok := r.Get("task-allocation")
	require.True(t, ok)
	p.Version = "tampered"

	p2, ok := r.Get("task-allocation")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", p2.Version)
}
