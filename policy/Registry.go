package policy

import (
	"fmt"
	"sort"
	"sync"
)

// Decoder decodes policy parameters from a configuration file into a
// concrete configuration type. *yaml.Node satisfies Decoder.
type Decoder interface {
	Decode(v interface{}) error
}

// Builder constructs a named policy from its decoded parameters
type Builder func(name string, params Decoder) (Policy, error)

// Registered kinds with the package. Once a kind has been registered
// with this map, policies of that kind can be built by name from a
// configuration.
//
// No kinds are registered with this package upon initialization. Each
// policy package registers its own kind to avoid circular imports.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]Builder)
)

// Register registers the Builder for a policy kind. Registering the
// same kind twice panics.
func Register(kind string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[kind]; ok {
		panic(fmt.Sprintf("policy: kind %q registered twice", kind))
	}
	registry[kind] = b
}

// Build builds a policy of a registered kind
func Build(kind, name string, params Decoder) (Policy, error) {
	registryMu.RLock()
	b, ok := registry[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("build policy %v: unknown kind %q (registered: "+
			"%v)", name, kind, Kinds())
	}
	return b(name, params)
}

// Kinds returns the sorted list of registered policy kinds
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
