package records

import (
	"fmt"
	"sort"
	"sync"
)

// NewDecoderFunc builds a decoder from its options.
type NewDecoderFunc func(Options) Decoder

// Options tune decoders created through the registry.
type Options struct {
	// VerifyCRC enables per-message checksum verification where the protocol
	// carries one.
	VerifyCRC bool
}

var (
	regMu    sync.RWMutex
	registry = make(map[string]NewDecoderFunc)
)

// Register makes a decoder available by name. Decoder packages call it from
// init; registering a name twice panics.
func Register(name string, fn NewDecoderFunc) {
	regMu.Lock()
	defer regMu.Unlock()

	if fn == nil {
		panic("records: new decoder func is nil")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("records: decoder already registered (%s)", name))
	}
	registry[name] = fn
}

// Lookup creates the decoder registered under name.
func Lookup(name string, opts Options) (Decoder, error) {
	regMu.RLock()
	defer regMu.RUnlock()

	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("records: decoder not found: %q", name)
	}
	return fn(opts), nil
}

// Names lists the registered decoders in order.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
