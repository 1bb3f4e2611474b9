package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by Limited when a payload exceeds its limit.
var ErrTooLarge = errors.New("codec: payload too large")

// Limited caps the size of payloads in both directions. Shared stores are
// written by other processes, so oversized input is refused before Inner
// sees it. Max <= 0 disables the check.
type Limited[V any] struct {
	Inner Codec[V]
	Max   int
}

func (c Limited[V]) Name() string { return NameOf(c.Inner) }

func (c Limited[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.Max > 0 && len(b) > c.Max {
		return nil, fmt.Errorf("%w: encoded %d > %d", ErrTooLarge, len(b), c.Max)
	}
	return b, nil
}

func (c Limited[V]) Decode(b []byte) (V, error) {
	if c.Max > 0 && len(b) > c.Max {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.Max)
	}
	return c.Inner.Decode(b)
}
