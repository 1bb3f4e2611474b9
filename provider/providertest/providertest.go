// Package providertest checks that a provider.Provider honours the contract
// the snapshot stores rely on.
package providertest

import (
	"bytes"
	"context"
	"testing"

	"github.com/unkn0wn-root/livecache/provider"
)

// Run exercises p with get/set/delete round trips. p must start empty.
func Run(t *testing.T, p provider.Provider) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		b, ok, err := p.Get(ctx, "absent")
		if err != nil || ok || b != nil {
			t.Fatalf("Get(absent) = %x, %v, %v", b, ok, err)
		}
	})

	t.Run("transparent", func(t *testing.T) {
		want := []byte{'L', 'V', 'C', 'F', 0, 0xff, 0x10}
		if err := p.Set(ctx, "k", want, 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, ok, err := p.Get(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("Get after Set: ok=%v err=%v", ok, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get = %x, want %x", got, want)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if err := p.Set(ctx, "k", []byte("v2"), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, _, _ := p.Get(ctx, "k")
		if string(got) != "v2" {
			t.Fatalf("Get = %q, want v2", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := p.Del(ctx, "k"); err != nil {
			t.Fatalf("Del: %v", err)
		}
		if _, ok, _ := p.Get(ctx, "k"); ok {
			t.Fatalf("key still present after Del")
		}
		if err := p.Del(ctx, "k"); err != nil {
			t.Fatalf("Del of missing key: %v", err)
		}
	})
}
