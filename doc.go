// Package livecache implements a reactive, capacity-bounded cache that sits
// between remote loaders and many concurrent consumers.
//
// Components:
//   - keys.Normalizer: argument tuple -> canonical key (CBOR by default).
//   - entry store: one Entry per key, kept in LRU order.
//   - loader coordinator: at most one in-flight load per key that callers
//     attach to; Reload always starts a new one.
//   - broadcaster: Subscribe/Observe push every state transition in order.
//   - invalidation: Remove, FlushAll, ObsoleteRange, SetExplicitValue.
//
// States:
//
//	uninitialized -> loading -> loaded | failed
//	loaded -> obsolete (ObsoleteRange) -> loaded | failed (next Get/Subscribe)
//
// Freshness: every stored value carries the start time of the load that
// produced it (or the explicit timestamp). A result older than what is
// already stored is discarded, so UpdatedAt never moves backwards.
//
// Usage:
//
//	devices, _ := livecache.New(livecache.Options[Device]{
//	    Name:     "device",
//	    Capacity: 100,
//	    Loader: func(ctx context.Context, args ...any) (Device, error) {
//	        return api.GetDevice(ctx, args[0].(string))
//	    },
//	})
//	d, err := devices.Get(ctx, "lamp")
//	devices.ObsoleteRange(func(_ Device, args []any) bool { return args[0] == "lamp" })
package livecache
