package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/devtools-rpc/endpoints/"

// EtcdRegistry implements Registry on etcd v3, used as a phonebook for
// debugging endpoints:
//
//	Key:   /devtools-rpc/endpoints/{Name}
//	Value: JSON-encoded Endpoint
//
// Publishing with a TTL attaches a lease that is kept alive in the background;
// if the publisher dies the lease expires and the entry disappears, so clients
// never dial a dead browser.
type EtcdRegistry struct {
	client *clientv3.Client // Thread-safe, shared across goroutines
	log    *zap.Logger

	mu     sync.Mutex
	leases map[string]publication // Names published by this process
}

type publication struct {
	lease clientv3.LeaseID
	stop  context.CancelFunc // Stops the KeepAlive loop
}

// NewEtcdRegistry connects to the given etcd endpoints. A nil logger is a no-op.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	return &EtcdRegistry{
		client: c,
		log:    logger,
		leases: make(map[string]publication),
	}, nil
}

func endpointKey(name string) string {
	return keyPrefix + name
}

// Publish stores ep under name.
//
// Flow with ttl > 0:
//  1. Grant a lease with the TTL
//  2. Put the key with the lease attached
//  3. KeepAlive renews the lease until Withdraw or Close
//
// The lease is tracked per name, never in a single field, so concurrent
// publications of different names do not race.
func (r *EtcdRegistry) Publish(ctx context.Context, name string, ep Endpoint, ttl int64) error {
	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	if ttl <= 0 {
		if _, err := r.client.Put(ctx, endpointKey(name), string(val)); err != nil {
			return fmt.Errorf("registry: publish %s: %w", name, err)
		}
		r.forget(name)
		return nil
	}

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	if _, err := r.client.Put(ctx, endpointKey(name), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registry: publish %s: %w", name, err)
	}

	// The renewal outlives the caller's ctx.
	keepCtx, stop := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		stop()
		return fmt.Errorf("registry: keep lease alive: %w", err)
	}

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		r.log.Debug("lease keep-alive stopped", zap.String("name", name))
	}()

	r.mu.Lock()
	old, had := r.leases[name]
	r.leases[name] = publication{lease: lease.ID, stop: stop}
	r.mu.Unlock()

	if had {
		old.stop()
	}
	r.log.Info("endpoint published", zap.String("name", name), zap.String("addr", ep.Addr), zap.Int64("ttl", ttl))
	return nil
}

// Withdraw deletes name and stops renewing its lease.
func (r *EtcdRegistry) Withdraw(ctx context.Context, name string) error {
	resp, err := r.client.Delete(ctx, endpointKey(name))
	if err != nil {
		return fmt.Errorf("registry: withdraw %s: %w", name, err)
	}
	if p, ok := r.forget(name); ok {
		_, _ = r.client.Revoke(ctx, p.lease)
	}
	if resp.Deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EtcdRegistry) forget(name string) (publication, bool) {
	r.mu.Lock()
	p, ok := r.leases[name]
	delete(r.leases, name)
	r.mu.Unlock()

	if ok {
		p.stop()
	}
	return p, ok
}

func (r *EtcdRegistry) Resolve(ctx context.Context, name string) (Endpoint, error) {
	resp, err := r.client.Get(ctx, endpointKey(name))
	if err != nil {
		return Endpoint{}, fmt.Errorf("registry: resolve %s: %w", name, err)
	}
	if len(resp.Kvs) == 0 {
		return Endpoint{}, ErrNotFound
	}

	var ep Endpoint
	if err := json.Unmarshal(resp.Kvs[0].Value, &ep); err != nil {
		return Endpoint{}, fmt.Errorf("registry: malformed entry %s: %w", name, err)
	}
	return ep, nil
}

// Watch uses etcd's server-push Watch API rather than polling.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan Endpoint {
	ch := make(chan Endpoint, 1)

	go func() {
		defer close(ch)

		for wresp := range r.client.Watch(ctx, endpointKey(name)) {
			for _, ev := range wresp.Events {
				var ep Endpoint
				if ev.Type == clientv3.EventTypePut {
					if err := json.Unmarshal(ev.Kv.Value, &ep); err != nil {
						r.log.Warn("skipping malformed endpoint", zap.String("name", name), zap.Error(err))
						continue
					}
				}

				select {
				case ch <- ep:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch
}

// Close stops every lease renewal and closes the etcd client. Published
// entries with a TTL expire on their own afterwards.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for name, p := range r.leases {
		p.stop()
		delete(r.leases, name)
	}
	r.mu.Unlock()
	return r.client.Close()
}
