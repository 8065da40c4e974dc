package credentials

import (
	"os"
	"strings"

	"github.com/golovatskygroup/mcp-infer/internal/registry"
)

// LookupFunc resolves one environment variable
type LookupFunc func(key string) (string, bool)

// FromEnv builds a credential bag per factory from its EnvVars mapping.
// A factory gets no bag at all when none of its variables are set, so the
// registry can tell missing credentials from invalid ones.
func FromEnv(factories []registry.Factory, lookup LookupFunc) map[string]registry.Credentials {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	out := make(map[string]registry.Credentials, len(factories))
	for _, f := range factories {
		bag := registry.Credentials{}
		for field, key := range f.EnvVars {
			v, ok := lookup(key)
			if !ok {
				continue
			}
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			bag[field] = v
		}
		if len(bag) > 0 {
			out[f.ID] = bag
		}
	}
	return out
}

// MapLookup returns a LookupFunc over a fixed map
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Chain returns a LookupFunc that tries each lookup in order
func Chain(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}
