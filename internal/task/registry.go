package task

import (
	"iter"

	"picotick/internal/clock"
)

// Handle is a registered task's slot index. It stays valid until the task is removed.
type Handle int

// InvalidHandle is returned alongside errors.
const InvalidHandle Handle = -1

const none = -1

// gen is bumped on every Add, so a slot that was freed and refilled during a
// tick is told apart from the occupant the tick started with.
type slot struct {
	task       *Task
	gen        uint64
	prev, next int
}

// Registry is a fixed-capacity arena of task slots.
//
// Slots are threaded into a list in registration order, so iteration order is
// the order tasks were added regardless of which slot they landed in. All
// storage is allocated by NewRegistry; Add and Remove never allocate.
type Registry struct {
	clk    clock.Clock
	policy FirstRun

	slots      []slot
	head, tail int
	n          int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithFirstRun sets the first-run policy applied by Add.
func WithFirstRun(p FirstRun) RegistryOption {
	return func(r *Registry) { r.policy = p }
}

// NewRegistry returns a registry holding at most capacity tasks.
// A capacity below 1 is raised to 1.
func NewRegistry(capacity int, clk clock.Clock, opts ...RegistryOption) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	r := &Registry{
		clk:   clk,
		slots: make([]slot, capacity),
		head:  none,
		tail:  none,
	}
	for i := range r.slots {
		r.slots[i] = slot{prev: none, next: none}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Clock returns the clock used to stamp registrations.
func (r *Registry) Clock() clock.Clock { return r.clk }

// Policy returns the first-run policy.
func (r *Registry) Policy() FirstRun { return r.policy }

func (r *Registry) Len() int { return r.n }
func (r *Registry) Cap() int { return len(r.slots) }

// Add registers t and stamps its LastRun according to the first-run policy.
//
// Adding a task that is already registered returns its existing handle and
// leaves LastRun and ordering untouched.
func (r *Registry) Add(t *Task) (Handle, error) {
	if t == nil {
		return InvalidHandle, ErrNilTask
	}
	if h, ok := r.find(t); ok {
		return h, nil
	}
	free := none
	for i := range r.slots {
		if r.slots[i].task == nil {
			free = i
			break
		}
	}
	if free == none {
		return InvalidHandle, ErrRegistryFull
	}

	now := r.clk.Now()
	switch r.policy {
	case FirstRunImmediate:
		t.LastRun = now - t.Interval
	default:
		t.LastRun = now
	}

	s := &r.slots[free]
	s.task = t
	s.gen++
	s.prev = r.tail
	s.next = none
	if r.tail != none {
		r.slots[r.tail].next = free
	} else {
		r.head = free
	}
	r.tail = free
	r.n++
	return Handle(free), nil
}

// Remove unregisters t. Unknown or nil tasks are ignored.
func (r *Registry) Remove(t *Task) {
	if t == nil {
		return
	}
	h, ok := r.find(t)
	if !ok {
		return
	}
	i := int(h)
	s := &r.slots[i]
	if s.prev != none {
		r.slots[s.prev].next = s.next
	} else {
		r.head = s.next
	}
	if s.next != none {
		r.slots[s.next].prev = s.prev
	} else {
		r.tail = s.prev
	}
	*s = slot{gen: s.gen, prev: none, next: none}
	r.n--
}

// Contains reports whether t is registered.
func (r *Registry) Contains(t *Task) bool {
	_, ok := r.find(t)
	return ok
}

// Lookup returns the task registered under h.
func (r *Registry) Lookup(h Handle) (*Task, bool) {
	if h < 0 || int(h) >= len(r.slots) {
		return nil, false
	}
	t := r.slots[h].task
	return t, t != nil
}

// All yields registered tasks in registration order. The body may remove the
// task it was handed.
func (r *Registry) All() iter.Seq2[Handle, *Task] {
	return func(yield func(Handle, *Task) bool) {
		for i := r.head; i != none; {
			next := r.slots[i].next
			if !yield(Handle(i), r.slots[i].task) {
				return
			}
			i = next
		}
	}
}

func (r *Registry) find(t *Task) (Handle, bool) {
	if t == nil {
		return InvalidHandle, false
	}
	for i := range r.slots {
		if r.slots[i].task == t {
			return Handle(i), true
		}
	}
	return InvalidHandle, false
}

// at returns the task in slot h and the slot's generation. The task is nil
// when the slot is free.
func (r *Registry) at(h Handle) (*Task, uint64) {
	s := &r.slots[h]
	return s.task, s.gen
}
