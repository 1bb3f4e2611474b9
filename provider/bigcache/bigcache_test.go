package bigcache

import (
	"context"
	"testing"
	"time"

	"github.com/unkn0wn-root/livecache/provider/providertest"
)

func TestContract(t *testing.T) {
	p, err := New(context.Background(), Config{LifeWindow: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(context.Background())
	providertest.Run(t, p)
}

func TestLifeWindowRequired(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without life window")
	}
}
