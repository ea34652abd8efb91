package store

import (
	"fmt"

	"github.com/lazypower/attention/internal/bag"
	"github.com/lazypower/attention/internal/config"
)

// Backend is an overflow key/value store that must be closed.
type Backend interface {
	bag.KV
	Close() error
}

var (
	_ Backend = (*SQLiteKV)(nil)
	_ Backend = (*RedisKV)(nil)
	_ Backend = (*EtcdKV)(nil)
)

// OpenBackend opens the backend cfg names. An empty backend means no
// overflow and returns nil, nil.
func OpenBackend(cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "memory":
		db, err := OpenMemory()
		if err != nil {
			return nil, err
		}
		kv := db.KV(cfg.Prefix)
		kv.owned = true
		return kv, nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		db, err := Open(path)
		if err != nil {
			return nil, err
		}
		kv := db.KV(cfg.Prefix)
		kv.owned = true
		return kv, nil
	case "redis":
		kv, err := NewRedisKV(RedisOptions{
			URL:            cfg.RedisURL,
			Prefix:         cfg.Prefix,
			ConnectTimeout: cfg.Timeout.Std(),
			TTL:            cfg.TTL.Std(),
		})
		if err != nil {
			return nil, err
		}
		return kv, nil
	case "etcd":
		kv, err := NewEtcdKV(EtcdOptions{
			Endpoints:   cfg.Endpoints,
			Prefix:      cfg.Prefix,
			DialTimeout: cfg.Timeout.Std(),
		})
		if err != nil {
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
