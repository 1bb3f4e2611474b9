package keys

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack normalizes with msgpack, sorting map keys so map arguments are
// stable. Struct fields follow `msgpack` tags. The zero value is ready to use.
type Msgpack struct{}

var _ Normalizer = Msgpack{}

func (Msgpack) Normalize(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(args); err != nil {
		return "", fmt.Errorf("msgpack: %w", err)
	}
	return buf.String(), nil
}
