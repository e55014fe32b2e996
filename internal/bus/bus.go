// Package bus implements the Orchestrator's in-process message bus: the
// mechanism by which agents that logically "ask each other questions"
// (Executor asks Strategist, Auditor rejects to Executor) communicate
// without calling one another directly. Keeping this as a bounded publish
// bus, rather than direct calls, means the Orchestrator's state machine
// remains the only loop controller — no agent can recurse into another.
package bus

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Kind identifies the type of message carried on the bus.
type Kind string

const (
	// KindRejection carries an Auditor verification rejection addressed to
	// the Executor (spec §4.8 step 5: "publish a typed message to the
	// Executor via an in-process message bus").
	KindRejection Kind = "REJECTION"

	// KindHelpRequest carries the Executor's question to the Strategist
	// when reasoning sets `question_to_atlas` (spec §4.7 step 6).
	KindHelpRequest Kind = "HELP_REQUEST"

	// KindResponse carries the Strategist's answer to a HelpRequest back to
	// the Executor.
	KindResponse Kind = "RESPONSE"

	// KindUserResponse carries a user's (or Strategist's decide_for_user
	// stand-in) answer to a consent-gate prompt back into the next
	// execute_step attempt (spec §4.9 step c, "inject the decision as a bus
	// message (user_response)").
	KindUserResponse Kind = "USER_RESPONSE"
)

// Message is one unit published on the Bus. SessionID and StepID scope a
// message to the orchestrator session and plan step it concerns; Subscriber
// implementations filter on these rather than relying on delivery order
// across sessions, since one process may run more than one session bus.
type Message struct {
	Kind      Kind
	SessionID string
	StepID    string
	Payload   any
}

type (
	// Bus publishes Trinity messages to registered subscribers in a fan-out
	// pattern. Thread-safe; supports concurrent Publish, Register, and Close.
	//
	// Delivery is synchronous in the publisher's goroutine and stops at the
	// first subscriber error, so a subscriber whose failure should halt a
	// step (e.g., checkpoint persistence) can do so deterministically.
	Bus interface {
		// Publish delivers msg to every currently registered subscriber in
		// registration order, stopping at the first error.
		Publish(ctx context.Context, msg Message) error

		// Register adds a subscriber and returns a Subscription that can be
		// closed to unregister. Returns an error if sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published messages. No agent in this repository
	// registers one: the agents only publish, the Orchestrator calls
	// Strategist.HelpExecutor directly, and the Executor's consent gate
	// reads Request.ProvidedResponse.
	Subscriber interface {
		HandleMessage(ctx context.Context, msg Message) error
	}

	// Subscription represents an active registration. Close is idempotent
	// and safe to call multiple times or via defer.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
		nextSeq     uint64
	}

	subscription struct {
		bus  *bus
		seq  uint64
		once sync.Once
	}
)

// New constructs an empty, ready-to-use message bus scoped to one
// orchestrator session.
func New() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish delivers msg to every currently registered subscriber, in
// registration order, over a snapshot taken before iteration begins so
// concurrent Register/Close calls never affect the in-flight delivery.
func (b *bus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	regs := make([]*subscription, 0, len(b.subscribers))
	for s := range b.subscribers {
		regs = append(regs, s)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].seq < regs[j].seq })
	subs := make([]Subscriber, 0, len(regs))
	for _, s := range regs {
		subs = append(subs, b.subscribers[s])
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.HandleMessage(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Register adds sub to the bus and returns a Subscription that unregisters
// it on Close. Returns an error if sub is nil.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	b.mu.Lock()
	b.nextSeq++
	s := &subscription{bus: b, seq: b.nextSeq}
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

// Close unregisters the subscriber. Idempotent.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, msg Message) error

// HandleMessage calls f.
func (f SubscriberFunc) HandleMessage(ctx context.Context, msg Message) error { return f(ctx, msg) }
