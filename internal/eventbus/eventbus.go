// Package eventbus implements synchronous publish/subscribe with
// wildcard subscribers (spec.md C14). Grounded on the teacher's
// mutation-event channel pattern in internal/rpc/server_core.go
// (MutationEvent/mutationChan), generalized from a single fan-out
// channel into a named-subscriber registry matched against dotted event
// names.
//
// Wildcard matching is hand-rolled rather than built on a shell-glob
// library: the semantics here are "*" matches exactly one dot-delimited
// segment and "**" matches any number of segments, which doesn't map
// onto filepath.Match-style character-class globs.
package eventbus

import (
	"strings"
	"sync"

	"github.com/dominikletica/aaviondb/internal/logging"
)

// Event is a single emitted occurrence.
type Event struct {
	Name string
	Data map[string]any
}

// Listener receives emitted events. It must never panic across the bus
// boundary; Bus recovers and logs any panic per listener instead of
// aborting the emit chain.
type Listener func(Event)

type subscription struct {
	pattern string
	segs    []string
	fn      Listener
}

// Bus is a synchronous, in-process event bus.
type Bus struct {
	mu   sync.Mutex
	subs []subscription
	log  *logging.Logger
}

func New(log *logging.Logger) *Bus {
	if log == nil {
		log = logging.Null()
	}
	return &Bus{log: log}
}

// Subscribe registers fn against pattern. Pattern segments are
// dot-delimited; "*" matches exactly one segment, "**" matches zero or
// more trailing/leading segments.
func (b *Bus) Subscribe(pattern string, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, segs: strings.Split(pattern, "."), fn: fn})
}

// Emit delivers event to every matching subscriber, in registration
// order, synchronously. A listener panic is caught, logged, and does
// not stop delivery to subsequent listeners.
func (b *Bus) Emit(name string, data map[string]any) {
	b.mu.Lock()
	matches := make([]Listener, 0, len(b.subs))
	nameSegs := strings.Split(name, ".")
	for _, s := range b.subs {
		if matchSegments(s.segs, nameSegs) {
			matches = append(matches, s.fn)
		}
	}
	b.mu.Unlock()

	ev := Event{Name: name, Data: data}
	for _, fn := range matches {
		b.dispatchSafely(fn, ev)
	}
}

func (b *Bus) dispatchSafely(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event listener panicked", logging.Fields{"event": ev.Name, "recover": r})
		}
	}()
	fn(ev)
}

// matchSegments matches pattern segments against name segments with "*"
// (exactly one segment) and "**" (any number of segments, including
// zero) support.
func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	if pattern[0] == "**" {
		if matchSegments(pattern[1:], name) {
			return true
		}
		if len(name) == 0 {
			return false
		}
		return matchSegments(pattern, name[1:])
	}
	if len(name) == 0 {
		return false
	}
	if pattern[0] != "*" && pattern[0] != name[0] {
		return false
	}
	return matchSegments(pattern[1:], name[1:])
}
