package main

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/livecache"
	"github.com/unkn0wn-root/livecache/codec"
	"github.com/unkn0wn-root/livecache/internal/config"
	"github.com/unkn0wn-root/livecache/iot"
	"github.com/unkn0wn-root/livecache/provider"
	"github.com/unkn0wn-root/livecache/provider/bigcache"
	"github.com/unkn0wn-root/livecache/provider/redis"
	"github.com/unkn0wn-root/livecache/provider/ristretto"
	"github.com/unkn0wn-root/livecache/source"
)

// openSnapshot builds the last-ping store described by cfg. It returns a nil
// store when snapshots are disabled.
func openSnapshot(ctx context.Context, cfg config.Snapshot, log livecache.Logger) (*source.Store[iot.PingHistory], func(context.Context) error, error) {
	if cfg.Store == "" || cfg.Store == "none" {
		return nil, nil, nil
	}
	c, err := snapshotCodec(cfg.Codec, cfg.MaxBytes)
	if err != nil {
		return nil, nil, err
	}
	p, err := openProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	s, err := source.New(source.Options[iot.PingHistory]{
		Namespace: cfg.Namespace,
		Provider:  p,
		Codec:     c,
		TTL:       cfg.TTL,
		Logger:    log,
	})
	if err != nil {
		_ = p.Close(ctx)
		return nil, nil, err
	}
	return s, p.Close, nil
}

func openProvider(ctx context.Context, cfg config.Snapshot) (provider.Provider, error) {
	switch cfg.Store {
	case "redis":
		return redis.Dial(ctx, cfg.Addr)
	case "ristretto":
		return ristretto.New(ristretto.DefaultConfig())
	case "bigcache":
		return bigcache.New(ctx, bigcache.Config{LifeWindow: cfg.TTL})
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func snapshotCodec(name string, maxBytes int) (codec.Codec[iot.PingHistory], error) {
	var c codec.Codec[iot.PingHistory]
	switch name {
	case "json":
		c = codec.JSON[iot.PingHistory]{}
	case "msgpack":
		c = codec.Msgpack[iot.PingHistory]{}
	case "cbor":
		cb, err := codec.NewCBOR[iot.PingHistory](true)
		if err != nil {
			return nil, err
		}
		c = cb
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	if maxBytes > 0 {
		c = codec.Limited[iot.PingHistory]{Inner: c, Max: maxBytes}
	}
	return c, nil
}
