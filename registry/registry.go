// Package registry is the runtime home of tool definitions.
//
// Lookups are lock-free: they read an immutable snapshot of the mapping.
// Writers serialize on a mutex and publish a new snapshot atomically, so a
// concurrent Resolve or List never observes a partially applied Load.
package registry

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/schema"
	"github.com/effective-security/nanomcp/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/nanomcp", "registry")

var (
	// ErrDuplicateTool is returned when a tool name is already registered
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrToolNotFound is returned when a tool name is not registered
	ErrToolNotFound = errors.New("tool not found")
)

type snapshot struct {
	byName map[string]*tools.Definition
	order  []*tools.Definition
}

var emptySnapshot = &snapshot{byName: map[string]*tools.Definition{}}

// Registry maps tool names to definitions, in registration order
type Registry struct {
	mu        sync.Mutex
	current   atomic.Pointer[snapshot]
	watchers  []watcher
	nextWatch uint64
}

type watcher struct {
	id uint64
	fn func()
}

// New returns an empty registry
func New() *Registry {
	r := &Registry{}
	r.current.Store(emptySnapshot)
	return r
}

// NewWith returns a registry loaded with the given definitions
func NewWith(defs ...*tools.Definition) (*Registry, error) {
	r := New()
	if err := r.Load(defs); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) snap() *snapshot {
	if s := r.current.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// Load installs a batch of definitions, typically the compiled table.
// The batch is rejected as a whole if any definition is invalid, or a name
// is duplicated within the batch or already registered.
func (r *Registry) Load(defs []*tools.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap()
	batch := make(map[string]bool, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return errors.WithMessage(err, "invalid tool definition")
		}
		name := def.Name()
		if batch[name] {
			return errors.Wrapf(ErrDuplicateTool, "%q appears more than once in the batch", name)
		}
		if _, ok := cur.byName[name]; ok {
			return errors.Wrapf(ErrDuplicateTool, "%q is already registered", name)
		}
		batch[name] = true
	}
	if len(defs) == 0 {
		return nil
	}

	next := cur.clone(len(defs))
	for _, def := range defs {
		next.byName[def.Name()] = def
		next.order = append(next.order, def)
	}
	r.publish(next)

	logger.KV(xlog.DEBUG, "status", "loaded", "count", len(defs), "total", len(next.order))
	return nil
}

// Register adds a single definition
func (r *Registry) Register(def *tools.Definition) error {
	if err := def.Validate(); err != nil {
		return errors.WithMessage(err, "invalid tool definition")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap()
	name := def.Name()
	if _, ok := cur.byName[name]; ok {
		return errors.Wrapf(ErrDuplicateTool, "%q is already registered", name)
	}
	next := cur.clone(1)
	next.byName[name] = def
	next.order = append(next.order, def)
	r.publish(next)

	logger.KV(xlog.DEBUG, "status", "registered", "tool", name)
	return nil
}

// Unregister removes a definition by name
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap()
	if _, ok := cur.byName[name]; !ok {
		return errors.Wrapf(ErrToolNotFound, "%q", name)
	}
	next := &snapshot{
		byName: make(map[string]*tools.Definition, len(cur.byName)),
		order:  make([]*tools.Definition, 0, len(cur.order)),
	}
	for _, def := range cur.order {
		if def.Name() == name {
			continue
		}
		next.byName[def.Name()] = def
		next.order = append(next.order, def)
	}
	r.publish(next)

	logger.KV(xlog.DEBUG, "status", "unregistered", "tool", name)
	return nil
}

// Resolve returns the definition registered under the name
func (r *Registry) Resolve(name string) (*tools.Definition, error) {
	def, ok := r.snap().byName[name]
	if !ok {
		return nil, errors.Wrapf(ErrToolNotFound, "%q", name)
	}
	return def, nil
}

// List returns the tool schemas in registration order
func (r *Registry) List() []*schema.Tool {
	s := r.snap()
	res := make([]*schema.Tool, len(s.order))
	for i, def := range s.order {
		res[i] = def.Schema
	}
	return res
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	return len(r.snap().order)
}

// Fingerprint returns the fingerprint of the registered schemas
func (r *Registry) Fingerprint() string {
	return schema.Fingerprint(r.List()...)
}

// Watch registers a function called after every change of the registry.
// Watchers are called synchronously, after the new snapshot is visible,
// and must not call back into the registry.
// The returned function removes the watcher; it may be called repeatedly.
func (r *Registry) Watch(fn func()) (unwatch func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextWatch++
	id := r.nextWatch
	r.watchers = append(r.watchers, watcher{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.watchers = slices.DeleteFunc(r.watchers, func(w watcher) bool { return w.id == id })
		})
	}
}

// Watchers returns the number of registered watchers
func (r *Registry) Watchers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// publish must be called with mu held
func (r *Registry) publish(next *snapshot) {
	r.current.Store(next)
	for _, w := range r.watchers {
		w.fn()
	}
}

func (s *snapshot) clone(extra int) *snapshot {
	next := &snapshot{
		byName: make(map[string]*tools.Definition, len(s.byName)+extra),
		order:  make([]*tools.Definition, len(s.order), len(s.order)+extra),
	}
	for k, v := range s.byName {
		next.byName[k] = v
	}
	copy(next.order, s.order)
	return next
}
