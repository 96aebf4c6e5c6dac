package frame

// Registry deduplicates frames by key. Frames are stored in a flat table and
// iterate in insertion order.
type Registry struct {
	frames []*Frame
	byKey  map[Key]ID
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[Key]ID)}
}

// GetOrInsert returns the frame registered for info.Key, creating it on first
// sight. Descriptive fields of later calls are ignored.
func (r *Registry) GetOrInsert(info Info) *Frame {
	if id, exists := r.byKey[info.Key]; exists {
		return r.frames[id]
	}
	f := &Frame{Info: info, id: ID(len(r.frames))}
	r.frames = append(r.frames, f)
	r.byKey[info.Key] = f.id
	return f
}

func (r *Registry) Get(k Key) (*Frame, bool) {
	id, exists := r.byKey[k]
	if !exists {
		return nil, false
	}
	return r.frames[id], true
}

// ByID returns the frame stored at id, or Root for RootID.
func (r *Registry) ByID(id ID) *Frame {
	if id == RootID {
		return Root
	}
	return r.frames[id]
}

// ByName looks name up as a string key first, then falls back to the first
// frame carrying that display name.
func (r *Registry) ByName(name string) (*Frame, bool) {
	if f, exists := r.Get(StringKey(name)); exists {
		return f, true
	}
	for _, f := range r.frames {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func (r *Registry) ForEach(fn func(f *Frame)) {
	for _, f := range r.frames {
		fn(f)
	}
}

func (r *Registry) Len() int {
	return len(r.frames)
}

// Clone copies every frame into a new registry. IDs are preserved, so trees
// indexing the original registry can be read through the clone.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		frames: make([]*Frame, len(r.frames)),
		byKey:  make(map[Key]ID, len(r.byKey)),
	}
	for i, f := range r.frames {
		cf := *f
		c.frames[i] = &cf
	}
	for k, id := range r.byKey {
		c.byKey[k] = id
	}
	return c
}
