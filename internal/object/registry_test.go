package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// marker is the minimal concrete object used by hierarchy tests.
type marker struct {
	Base
	initialized bool
	removed     bool
}

func (m *marker) Kind() string        { return "marker" }
func (m *marker) InitializeOnServer() { m.initialized = true }
func (m *marker) PrepareToRemove()    { m.removed = true }

func TestRegistryAddAssignsSequentialIDs(t *testing.T) {
	r := NewRegistry()
	a := &marker{}
	b := &marker{}

	idA := r.Add(a)
	idB := r.Add(b)

	assert.NotEqual(t, InvalidID, idA)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, idA, a.NetworkID())
	assert.True(t, a.initialized, "Add runs server-side initialization")

	got, ok := r.Get(idB)
	require.True(t, ok)
	assert.Same(t, Object(b), got)
	assert.Equal(t, []ID{idA, idB}, r.IDs())
}

func TestRegistryInsertRejectsCollisions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(7, &marker{}))
	assert.Error(t, r.Insert(7, &marker{}))
	assert.Error(t, r.Insert(InvalidID, &marker{}))

	inserted := &marker{}
	require.NoError(t, r.Insert(9, inserted))
	assert.False(t, inserted.initialized, "Insert is the client path; no server init")
}

func TestRegistryParentChildLinks(t *testing.T) {
	r := NewRegistry()
	parent := &marker{}
	child := &marker{}
	parentID := r.Add(parent)
	childID := r.Add(child)

	r.UpdateParent(child, parentID)
	assert.Equal(t, parentID, child.ParentID())
	assert.Equal(t, []ID{childID}, r.Children(parentID))

	resolved, ok := r.Parent(child)
	require.True(t, ok)
	assert.Same(t, Object(parent), resolved)

	// Reparenting leaves the old child set.
	other := &marker{}
	otherID := r.Add(other)
	r.UpdateParent(child, otherID)
	assert.Empty(t, r.Children(parentID))
	assert.Equal(t, []ID{childID}, r.Children(otherID))
}

func TestRegistryRemoveOrphansChildren(t *testing.T) {
	r := NewRegistry()
	parent := &marker{}
	child := &marker{}
	parentID := r.Add(parent)
	r.Add(child)
	r.UpdateParent(child, parentID)

	removed, ok := r.Remove(parentID)
	require.True(t, ok)
	assert.Same(t, Object(parent), removed)

	assert.Equal(t, InvalidID, child.ParentID())
	_, ok = r.Parent(child)
	assert.False(t, ok)
	assert.Empty(t, r.Children(parentID))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDanglingParentResolvesToNothing(t *testing.T) {
	r := NewRegistry()
	child := &marker{}
	r.Add(child)

	// The link is weak: pointing at a never-registered id is allowed.
	r.UpdateParent(child, 999)
	_, ok := r.Parent(child)
	assert.False(t, ok)
}

func TestKindRegistry(t *testing.T) {
	RegisterKind("marker", func() Object { return &marker{} })

	obj, ok := NewOfKind("marker")
	require.True(t, ok)
	assert.Equal(t, "marker", obj.Kind())

	_, ok = NewOfKind("never-registered")
	assert.False(t, ok)

	assert.Panics(t, func() { RegisterKind("", func() Object { return nil }) })
	assert.Panics(t, func() { RegisterKind("marker", nil) })
}
