package registry

import (
	"context"
	"sync"
)

// StaticRegistry keeps endpoints in memory. TTLs are ignored.
type StaticRegistry struct {
	mu        sync.Mutex
	endpoints map[string]Endpoint
	watchers  map[string][]chan Endpoint
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		endpoints: make(map[string]Endpoint),
		watchers:  make(map[string][]chan Endpoint),
	}
}

func (r *StaticRegistry) Publish(ctx context.Context, name string, ep Endpoint, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[name] = ep
	r.notify(name, ep)
	return nil
}

func (r *StaticRegistry) Withdraw(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[name]; !ok {
		return ErrNotFound
	}
	delete(r.endpoints, name)
	r.notify(name, Endpoint{})
	return nil
}

func (r *StaticRegistry) Resolve(ctx context.Context, name string) (Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, ErrNotFound
	}
	return ep, nil
}

func (r *StaticRegistry) Watch(ctx context.Context, name string) <-chan Endpoint {
	ch := make(chan Endpoint, 1)

	r.mu.Lock()
	r.watchers[name] = append(r.watchers[name], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()

		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.watchers[name]
		for i, w := range list {
			if w == ch {
				r.watchers[name] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notify keeps only the latest value in each watcher. Called with mu held.
func (r *StaticRegistry) notify(name string, ep Endpoint) {
	for _, ch := range r.watchers[name] {
		select {
		case <-ch:
		default:
		}
		ch <- ep
	}
}
