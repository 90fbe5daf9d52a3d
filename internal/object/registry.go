package object

import (
	"fmt"
	"sort"
)

// Registry is the arena of live replicated objects, keyed by id. Parent and
// child links are id-based and weak: resolution happens at lookup time, so
// a removed parent simply stops resolving instead of dangling.
//
// The registry is not thread-safe; the goroutine that owns the role's
// replication state owns the registry too.
type Registry struct {
	objects  map[ID]Object
	children map[ID]map[ID]struct{}
	nextID   ID
}

func NewRegistry() *Registry {
	return &Registry{
		objects:  make(map[ID]Object),
		children: make(map[ID]map[ID]struct{}),
	}
}

// Add allocates an id for obj and registers it. Server side only; clients
// register under server-assigned ids via Insert.
func (r *Registry) Add(obj Object) ID {
	for {
		r.nextID++
		if r.nextID == InvalidID {
			continue
		}
		if _, taken := r.objects[r.nextID]; !taken {
			break
		}
	}
	id := r.nextID
	obj.SetNetworkID(id)
	r.objects[id] = obj
	r.attach(obj)
	obj.InitializeOnServer()
	return id
}

// Insert registers obj under an id assigned elsewhere.
func (r *Registry) Insert(id ID, obj Object) error {
	if id == InvalidID {
		return fmt.Errorf("object: cannot insert under invalid id")
	}
	if _, taken := r.objects[id]; taken {
		return fmt.Errorf("object: id %d already registered", id)
	}
	obj.SetNetworkID(id)
	r.objects[id] = obj
	r.attach(obj)
	return nil
}

func (r *Registry) Get(id ID) (Object, bool) {
	obj, ok := r.objects[id]
	return obj, ok
}

// Parent resolves obj's parent link. A link to a removed or never-known id
// resolves to nothing.
func (r *Registry) Parent(obj Object) (Object, bool) {
	parent := obj.ParentID()
	if parent == InvalidID {
		return nil, false
	}
	got, ok := r.objects[parent]
	return got, ok
}

// Children returns the ids currently linked to parent, sorted.
func (r *Registry) Children(parent ID) []ID {
	set := r.children[parent]
	if len(set) == 0 {
		return nil
	}
	ids := make([]ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// UpdateParent re-resolves child's hierarchy link: it leaves the old
// parent's child set and joins the new one. Called whenever
// hierarchy-affecting state changes.
func (r *Registry) UpdateParent(child Object, parent ID) {
	r.detach(child)
	child.SetParent(parent)
	r.attach(child)
}

// Remove unregisters id. The object leaves its parent's child set and its
// own children become orphans with no parent link.
func (r *Registry) Remove(id ID) (Object, bool) {
	obj, ok := r.objects[id]
	if !ok {
		return nil, false
	}
	r.detach(obj)
	for child := range r.children[id] {
		if got, ok := r.objects[child]; ok {
			got.SetParent(InvalidID)
		}
	}
	delete(r.children, id)
	delete(r.objects, id)
	return obj, true
}

func (r *Registry) Len() int { return len(r.objects) }

// IDs returns every registered id, sorted, so per-tick iteration is
// deterministic.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Each visits every object in id order.
func (r *Registry) Each(fn func(Object)) {
	for _, id := range r.IDs() {
		fn(r.objects[id])
	}
}

func (r *Registry) attach(obj Object) {
	parent := obj.ParentID()
	if parent == InvalidID {
		return
	}
	set := r.children[parent]
	if set == nil {
		set = make(map[ID]struct{})
		r.children[parent] = set
	}
	set[obj.NetworkID()] = struct{}{}
}

func (r *Registry) detach(obj Object) {
	parent := obj.ParentID()
	if parent == InvalidID {
		return
	}
	if set := r.children[parent]; set != nil {
		delete(set, obj.NetworkID())
		if len(set) == 0 {
			delete(r.children, parent)
		}
	}
}
