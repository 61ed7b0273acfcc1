// Package tags implements the wildcard/composite tag discovery and routing
// map for wildcard/composite tag discovery and routing: a registration
// map guarded by a mutex, plus callbacks invoked outside the lock so the
// embedder can safely re-enter the registry from its own callback.
package tags

import (
	"fmt"
	"strings"
	"sync"
)

// BuildTags derives the base, composite, and wildcard tags for a stream per
// composite = "<peer_identity> <program>" with NULs
// stripped, uniqueness comes from appending "#" + a 6-hex uniquifier to the
// base, and the wildcard tag is the base tag with "*" appended.
func BuildTags(peerIdentity, program, uniquifier string) (base, composite, wildcard string) {
	clean := func(s string) string { return strings.ReplaceAll(s, "\x00", "") }
	if program == "" {
		program = "PulseClient"
	}
	base = clean(peerIdentity) + " " + clean(program)
	composite = fmt.Sprintf("%s#%s", base, uniquifier)
	wildcard = base + "*"
	return base, composite, wildcard
}

// NotificationType distinguishes discovery from removal notifications.
type NotificationType int

const (
	NotificationDiscovered NotificationType = iota
	NotificationRemoved
)

// Notification is pushed to the registry's notification queue on first
// sight of a wildcard tag, and again when its last composite is removed.
type Notification struct {
	Type     NotificationType
	Wildcard string
}

// Registry holds the known-wildcards/seen-tags state and the
// wildcard->composites routing map. Per the lock-order rule,
// the tags mutex is always acquired before the wildcard-map mutex when
// both are needed.
type Registry struct {
	tagsMu    sync.Mutex
	known     map[string]struct{}
	seen      []string

	mapMu     sync.Mutex
	wildcards map[string]map[string]struct{} // wildcard -> set of composites

	notifications chan Notification

	onResolved func(wildcard, composite string)
	onRemoved  func(wildcard string)
}

// New returns an empty Registry. notifyCapacity sizes the buffered
// notification channel (0 disables it — pushes are then dropped rather
// than blocking the caller). onResolved/onRemoved may be nil.
func New(notifyCapacity int, onResolved func(wildcard, composite string), onRemoved func(wildcard string)) *Registry {
	return &Registry{
		known:         make(map[string]struct{}),
		wildcards:     make(map[string]map[string]struct{}),
		notifications: make(chan Notification, notifyCapacity),
		onResolved:    onResolved,
		onRemoved:     onRemoved,
	}
}

// Register records that composite is now advertised under wildcard. On
// first sight of wildcard, a NotificationDiscovered is pushed to the
// notification queue. The onResolved callback, if any, fires afterward and
// always outside any lock.
func (r *Registry) Register(wildcard, composite string) {
	firstSight := r.markSeen(wildcard)
	if firstSight {
		r.pushNotification(Notification{Type: NotificationDiscovered, Wildcard: wildcard})
	}

	r.mapMu.Lock()
	set, ok := r.wildcards[wildcard]
	if !ok {
		set = make(map[string]struct{})
		r.wildcards[wildcard] = set
	}
	set[composite] = struct{}{}
	r.mapMu.Unlock()

	if r.onResolved != nil {
		r.onResolved(wildcard, composite)
	}
}

// Remove withdraws composite from wildcard. If that was the last composite
// behind wildcard, the mapping entry is dropped, a NotificationRemoved is
// pushed, and onRemoved fires (outside any lock).
func (r *Registry) Remove(wildcard, composite string) {
	r.mapMu.Lock()
	set, ok := r.wildcards[wildcard]
	removedLast := false
	if ok {
		delete(set, composite)
		if len(set) == 0 {
			delete(r.wildcards, wildcard)
			removedLast = true
		}
	}
	r.mapMu.Unlock()

	if removedLast {
		r.pushNotification(Notification{Type: NotificationRemoved, Wildcard: wildcard})
		if r.onRemoved != nil {
			r.onRemoved(wildcard)
		}
	}
}

// markSeen records wildcard in the known-tags set and the seen-tags batch,
// reporting whether this is the first time it has been observed.
func (r *Registry) markSeen(wildcard string) bool {
	r.tagsMu.Lock()
	defer r.tagsMu.Unlock()
	if _, ok := r.known[wildcard]; ok {
		return false
	}
	r.known[wildcard] = struct{}{}
	r.seen = append(r.seen, wildcard)
	return true
}

// DrainSeenTags returns and clears the consumable batch of newly seen
// wildcard tags since the last call.
func (r *Registry) DrainSeenTags() []string {
	r.tagsMu.Lock()
	defer r.tagsMu.Unlock()
	out := r.seen
	r.seen = nil
	return out
}

// Composites returns a snapshot of the composites currently registered
// under wildcard.
func (r *Registry) Composites(wildcard string) []string {
	r.mapMu.Lock()
	defer r.mapMu.Unlock()
	set, ok := r.wildcards[wildcard]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) pushNotification(n Notification) {
	select {
	case r.notifications <- n:
	default:
	}
}

// Notifications exposes the read side of the notification queue.
func (r *Registry) Notifications() <-chan Notification {
	return r.notifications
}
