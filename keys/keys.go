// Package keys turns loader argument tuples into stable, comparable cache keys.
//
// A Normalizer must be deterministic: two argument slices that are
// structurally equal (same order, same values) always produce the same key,
// regardless of pointer identity or map iteration order.
package keys

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrEmptyArgs is returned when a tuple has no arguments and the normalizer
// was built to reject it.
var ErrEmptyArgs = errors.New("keys: empty argument tuple")

// Normalizer encodes an argument tuple into a canonical key.
type Normalizer interface {
	Normalize(args []any) (string, error)
}

// Func adapts a plain function to Normalizer.
type Func func(args []any) (string, error)

func (f Func) Normalize(args []any) (string, error) { return f(args) }

// CBOR normalizes with RFC 8949 core deterministic encoding: map keys are
// sorted, integers use the shortest form and pointers are encoded by the
// value they point at. The zero value is NOT ready to use; see NewCBOR.
type CBOR struct {
	em          cbor.EncMode
	rejectEmpty bool
}

var _ Normalizer = CBOR{}

// NewCBOR builds the default normalizer. Times are encoded as RFC3339Nano.
func NewCBOR() (CBOR, error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{em: em}, nil
}

// MustCBOR is like NewCBOR but panics on error.
func MustCBOR() CBOR {
	c, err := NewCBOR()
	if err != nil {
		panic(err)
	}
	return c
}

// RejectEmpty returns a copy that fails on zero-length tuples.
func (c CBOR) RejectEmpty() CBOR {
	c.rejectEmpty = true
	return c
}

func (c CBOR) Normalize(args []any) (string, error) {
	if c.rejectEmpty && len(args) == 0 {
		return "", ErrEmptyArgs
	}
	if args == nil {
		args = []any{}
	}
	b, err := c.em.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("cbor: %w", err)
	}
	return string(b), nil
}
