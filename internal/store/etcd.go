package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdOptions configures the etcd backend.
type EtcdOptions struct {
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration
}

// EtcdKV stores items under "/<prefix>/<key>" in etcd.
type EtcdKV struct {
	kv     clientv3.KV
	client *clientv3.Client
	prefix string
}

// NewEtcdKV connects to the etcd cluster and checks it is reachable.
func NewEtcdKV(opts EtcdOptions) (*EtcdKV, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check: %w", err)
	}

	kv := NewEtcdKVFrom(cli, opts.Prefix)
	kv.client = cli
	return kv, nil
}

// NewEtcdKVFrom wraps an existing KV, such as a client or a namespaced view.
func NewEtcdKVFrom(kv clientv3.KV, prefix string) *EtcdKV {
	return &EtcdKV{kv: kv, prefix: "/" + strings.Trim(prefix, "/") + "/"}
}

// Get returns the value under key, or nil, nil if there is none.
func (e *EtcdKV) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := e.kv.Get(ctx, e.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	return resp.Kvs[0].Value, nil
}

func (e *EtcdKV) Put(ctx context.Context, key string, value []byte) error {
	if _, err := e.kv.Put(ctx, e.prefix+key, string(value)); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

func (e *EtcdKV) Delete(ctx context.Context, key string) error {
	if _, err := e.kv.Delete(ctx, e.prefix+key); err != nil {
		return fmt.Errorf("etcd delete %s: %w", key, err)
	}
	return nil
}

// Close closes the client when NewEtcdKV created it.
func (e *EtcdKV) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
