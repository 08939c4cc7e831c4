package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
)

// ConsulProvider loads config from a Consul KV key and watches it with
// blocking queries.
type ConsulProvider struct {
	client *api.Client
	key    string
}

// NewConsulProvider creates a provider reading the given KV key. The
// first endpoint is used as the agent address; an empty list falls back
// to the client library's defaults.
func NewConsulProvider(endpoints []string, key string) (*ConsulProvider, error) {
	if key == "" {
		return nil, fmt.Errorf("consul key is required")
	}

	cfg := api.DefaultConfig()
	if len(endpoints) > 0 {
		cfg.Address = endpoints[0]
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulProvider{
		client: client,
		key:    key,
	}, nil
}

// Type returns TypeConsul.
func (p *ConsulProvider) Type() Type {
	return TypeConsul
}

// Load reads the KV key.
func (p *ConsulProvider) Load(ctx context.Context) ([]byte, error) {
	opts := (&api.QueryOptions{}).WithContext(ctx)
	pair, _, err := p.client.KV().Get(p.key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read consul key %s: %w", p.key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul key %s does not exist", p.key)
	}
	return pair.Value, nil
}

// Watch signals whenever the key's modify index advances.
func (p *ConsulProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go p.watchLoop(ctx, ch)
	return ch, nil
}

func (p *ConsulProvider) watchLoop(ctx context.Context, ch chan<- struct{}) {
	defer close(ch)

	var lastIndex uint64
	for {
		opts := (&api.QueryOptions{
			WaitIndex: lastIndex,
			WaitTime:  5 * time.Minute,
		}).WithContext(ctx)

		pair, meta, err := p.client.KV().Get(p.key, opts)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("Consul watch failed, retrying", "key", p.key, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if pair == nil {
			// Key removed; keep waiting for it to come back.
			lastIndex = meta.LastIndex
			continue
		}

		// The first query returns immediately and only primes the index.
		if lastIndex != 0 && meta.LastIndex != lastIndex {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		lastIndex = meta.LastIndex
	}
}

// Close is a no-op; the consul client holds no persistent connection.
func (p *ConsulProvider) Close() error {
	return nil
}

// Ensure ConsulProvider implements Provider
var _ Provider = (*ConsulProvider)(nil)
