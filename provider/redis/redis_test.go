package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/livecache/provider/providertest"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 100 * time.Millisecond,
		PoolSize:    2,
	})
	p, err := New(Config{Client: client, Owned: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, mr
}

func TestContract(t *testing.T) {
	p, _ := newTestRedis(t)
	providertest.Run(t, p)
}

func TestNilClient(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

func TestTTLExpires(t *testing.T) {
	p, mr := newTestRedis(t)
	ctx := context.Background()

	if err := p.Set(ctx, "ping:1", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, err := p.Get(ctx, "ping:1"); ok || err != nil {
		t.Fatalf("expired key: ok=%v err=%v", ok, err)
	}
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	p, err := Dial(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	p, mr := newTestRedis(t)
	mr.SetError("LOADING")
	if _, _, err := p.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected server error")
	}
}
