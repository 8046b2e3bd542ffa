package client

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"devtools-rpc/domain"
)

// Handler receives a decoded event payload. Handlers run on the receive loop
// and must hand heavy or blocking work to their own goroutines.
type Handler func(payload any)

// UnknownEventHandler receives events nobody listens for, or whose domain or
// name the catalog does not know. params is a private copy.
type UnknownEventHandler func(domainName, eventName string, params []byte)

// UnknownMessageHandler receives messages that are neither a response nor an
// event. data is a private copy.
type UnknownMessageHandler func(data []byte)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	key     string
	fn      Handler
	removed atomic.Bool
}

// eventRegistry maps "Domain.event" to its subscribers.
//
// Subscriber slices are copy-on-write: dispatch reads a slice under RLock and
// iterates it unlocked, and writers always install a fresh slice.
type eventRegistry struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription

	catalog *domain.Catalog
	unknown UnknownEventHandler
	log     *zap.Logger
	metrics *connMetrics
}

func newEventRegistry(catalog *domain.Catalog, unknown UnknownEventHandler, log *zap.Logger, m *connMetrics) *eventRegistry {
	return &eventRegistry{
		subs:    make(map[string][]*Subscription),
		catalog: catalog,
		unknown: unknown,
		log:     log,
		metrics: m,
	}
}

func eventKey(domainName, eventName string) string {
	return domainName + "." + eventName
}

// Subscribe appends fn to the subscribers of domainName.eventName.
func (r *eventRegistry) Subscribe(domainName, eventName string, fn Handler) *Subscription {
	sub := &Subscription{key: eventKey(domainName, eventName), fn: fn}
	if _, known := r.catalog.Event(domainName, eventName); !known {
		r.log.Warn("subscribed to an event missing from the catalog; it will go to the unknown-event handler",
			zap.String("event", sub.key))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.subs[sub.key]
	next := make([]*Subscription, len(old), len(old)+1)
	copy(next, old)
	r.subs[sub.key] = append(next, sub)
	return sub
}

// Unsubscribe removes sub. A dispatch already in progress skips it from now on.
// It reports whether sub was still registered.
func (r *eventRegistry) Unsubscribe(sub *Subscription) bool {
	if sub == nil || sub.removed.Swap(true) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.subs[sub.key]
	next := make([]*Subscription, 0, len(old))
	for _, s := range old {
		if s != sub {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(r.subs, sub.key)
	} else {
		r.subs[sub.key] = next
	}
	return true
}

func (r *eventRegistry) snapshot(key string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[key]
}

// dispatch delivers one event. The payload is decoded at most once and shared
// by every subscriber.
func (r *eventRegistry) dispatch(domainName, eventName string, params []byte) {
	r.metrics.events.Inc()

	subs := r.snapshot(eventKey(domainName, eventName))
	info, known := r.catalog.Event(domainName, eventName)
	if len(subs) == 0 || !known {
		r.metrics.unknownEvents.Inc()
		if r.unknown != nil {
			r.unknown(domainName, eventName, params)
		}
		return
	}

	payload, err := info.Decode(params)
	if err != nil {
		r.metrics.eventDecodeErrors.Inc()
		r.log.Warn("dropping undecodable event",
			zap.String("event", info.Method), zap.Error(err))
		return
	}

	for _, sub := range subs {
		if sub.removed.Load() {
			continue
		}
		r.invoke(info.Method, sub, payload)
	}
}

func (r *eventRegistry) invoke(method string, sub *Subscription, payload any) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("event handler panicked",
				zap.String("event", method), zap.String("panic", fmt.Sprint(p)))
		}
	}()
	sub.fn(payload)
}
