package rcl

import (
	"fmt"
	"sync"
)

// GroupKind is the exclusivity policy of a CallbackGroup.
type GroupKind int

const (
	// MutuallyExclusive allows one member callback at a time.
	MutuallyExclusive GroupKind = iota
	// Reentrant allows any number of member callbacks at once.
	Reentrant
	// Custom delegates the decision to a Policy.
	Custom
)

// String returns the kind name used in logs and dispatch records.
func (k GroupKind) String() string {
	switch k {
	case MutuallyExclusive:
		return "mutually_exclusive"
	case Reentrant:
		return "reentrant"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("GroupKind(%d)", int(k))
	}
}

// ParseGroupKind is the inverse of GroupKind.String for the built-in kinds.
func ParseGroupKind(s string) (GroupKind, error) {
	switch s {
	case "mutually_exclusive", "":
		return MutuallyExclusive, nil
	case "reentrant":
		return Reentrant, nil
	default:
		return 0, newError(ErrCodeInvalidArgument, "unknown callback group kind %q", s)
	}
}

// Policy decides for a Custom group whether another member may start.
type Policy interface {
	// Allow is called with the number of member callbacks currently
	// executing or selected in the running dispatch pass.
	Allow(inFlight int) bool
	Name() string
}

type maxConcurrency int

func (m maxConcurrency) Allow(inFlight int) bool { return inFlight < int(m) }
func (m maxConcurrency) Name() string            { return fmt.Sprintf("max_concurrency(%d)", int(m)) }

// MaxConcurrency allows at most n member callbacks at once.
// MaxConcurrency(1) behaves like MutuallyExclusive.
func MaxConcurrency(n int) Policy {
	if n < 1 {
		n = 1
	}
	return maxConcurrency(n)
}

// CallbackGroup controls which of its member entities may run concurrently.
//
// The executor calls Begin when it selects a member and End when the
// member's callback returns, whatever the outcome. Begin both checks the
// policy and records the member as in flight, so two members selected in
// the same dispatch pass are counted.
type CallbackGroup struct {
	id     string
	kind   GroupKind
	policy Policy
	node   *Node

	mu       sync.Mutex
	inFlight int
	members  map[string]Waitable
}

func newCallbackGroup(id string, kind GroupKind, policy Policy, node *Node) *CallbackGroup {
	return &CallbackGroup{
		id:      id,
		kind:    kind,
		policy:  policy,
		node:    node,
		members: make(map[string]Waitable),
	}
}

// ID returns the group's unique id.
func (g *CallbackGroup) ID() string { return g.id }

// Kind returns the group's policy kind.
func (g *CallbackGroup) Kind() GroupKind { return g.kind }

// Policy returns the strategy of a Custom group, nil otherwise.
func (g *CallbackGroup) Policy() Policy { return g.policy }

// Node returns the node that created the group.
func (g *CallbackGroup) Node() *Node { return g.node }

// HasMember reports whether w belongs to the group.
func (g *CallbackGroup) HasMember(w Waitable) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.members[w.GID()]
	return ok
}

// Len returns the number of members.
func (g *CallbackGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (g *CallbackGroup) add(w Waitable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[w.GID()] = w
}

func (g *CallbackGroup) remove(w Waitable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, w.GID())
}

func (g *CallbackGroup) allowLocked() bool {
	switch g.kind {
	case Reentrant:
		return true
	case Custom:
		return g.policy.Allow(g.inFlight)
	default:
		return g.inFlight == 0
	}
}

// CanExecute reports whether w could start now. It is false for entities
// that are not members.
func (g *CallbackGroup) CanExecute(w Waitable) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[w.GID()]; !ok {
		return false
	}
	return g.allowLocked()
}

// Begin records w as in flight if the policy allows it.
func (g *CallbackGroup) Begin(w Waitable) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[w.GID()]; !ok {
		return false
	}
	if !g.allowLocked() {
		return false
	}
	g.inFlight++
	return true
}

// End clears one in-flight record. It must be called exactly once for each
// successful Begin.
func (g *CallbackGroup) End(Waitable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight > 0 {
		g.inFlight--
	}
}

// InFlight returns the number of member callbacks currently in flight.
func (g *CallbackGroup) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
