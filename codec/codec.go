// Package codec turns cached values into bytes for byte-oriented stores.
package codec

// Codec encodes and decodes values of type V.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Named is implemented by codecs that can report a short name. Stores write
// the name into their frames so that a value written with one codec is never
// decoded with another.
type Named interface {
	Name() string
}

// NameOf returns the codec name, or "" when c does not implement Named.
func NameOf(c any) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return ""
}
