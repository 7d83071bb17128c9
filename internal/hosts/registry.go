package hosts

import (
	"regexp"
	"strings"
	"time"

	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
)

func errDuplicateAdapter(id string) error {
	return errors.Newf("adapter %q already registered", id).
		Component("hosts").
		Category(errors.CategoryValidation).
		Build()
}

// DefaultRateLimit is the shared fixed-window budget applied when an
// adapter declares no override.
var DefaultRateLimit = RateLimitConfig{
	Window:      15 * time.Minute,
	MaxRequests: 100,
}

// publicIDPrefix matches the "<providerID>:<rest>" public-id form.
var publicIDPrefix = regexp.MustCompile(`(?i)^([a-z0-9_-]+):(.*)$`)

// Registry holds the ordered set of host adapters and performs
// input-to-adapter dispatch. The first registered adapter is the default:
// its public ids and cache keys stay unprefixed for backward compatibility
// with identifiers issued before multi-host support existed.
//
// Registration order is the single source of match precedence, so
// broad/overlapping matchers (such as a bare-id matcher) belong last.
type Registry struct {
	adapters  []Adapter
	byID      map[string]Adapter
	rateLimit RateLimitConfig
}

// NewRegistry creates a registry with the given shared rate-limit default.
// A zero config falls back to DefaultRateLimit.
func NewRegistry(rateLimit RateLimitConfig) *Registry {
	if rateLimit.Window <= 0 || rateLimit.MaxRequests <= 0 {
		rateLimit = DefaultRateLimit
	}
	return &Registry{
		byID:      make(map[string]Adapter),
		rateLimit: rateLimit,
	}
}

// Register appends an adapter. The first registration defines the default
// adapter. Duplicate ids are rejected.
func (r *Registry) Register(adapter Adapter) error {
	id := adapter.ID()
	if _, exists := r.byID[id]; exists {
		return errDuplicateAdapter(id)
	}
	r.adapters = append(r.adapters, adapter)
	r.byID[id] = adapter
	return nil
}

// Default returns the first-registered adapter, or nil when empty.
func (r *Registry) Default() Adapter {
	if len(r.adapters) == 0 {
		return nil
	}
	return r.adapters[0]
}

// Get returns the adapter with the given id, or nil.
func (r *Registry) Get(id string) Adapter {
	return r.byID[id]
}

// Adapters returns the adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// ResolveInput dispatches raw user input to an adapter. Each adapter's
// MatchInput is tried in registration order; the first that both matches
// and parses wins. When none does, the default adapter gets a final parse
// attempt. Returns nil when no adapter can make sense of the input.
func (r *Registry) ResolveInput(input string) *ParsedInput {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	for _, adapter := range r.adapters {
		if !adapter.MatchInput(input) {
			continue
		}
		if parsed := adapter.ParseInput(input); parsed != nil {
			return parsed
		}
	}

	if def := r.Default(); def != nil {
		return def.ParseInput(input)
	}
	return nil
}

// ParsePublicID resolves a previously issued public identifier.
//
// A "<id>:<rest>" prefix naming a registered adapter delegates to that
// adapter; if its own parser rejects the string, the prefix still wins and
// the rest is taken as an opaque resource id, so a recognized prefix never
// fails outright. Without a matching prefix every adapter's parser is tried
// in order, the default adapter last.
func (r *Registry) ParsePublicID(publicID string) *ParsedInput {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil
	}

	if m := publicIDPrefix.FindStringSubmatch(publicID); m != nil {
		providerID, rest := m[1], m[2]
		if adapter := r.Get(providerID); adapter != nil {
			if parsed := adapter.ParsePublicID(publicID); parsed != nil {
				return parsed
			}
			return &ParsedInput{
				ProviderID: providerID,
				ResourceID: rest,
				PublicID:   publicID,
			}
		}
	}

	for _, adapter := range r.adapters {
		if parsed := adapter.ParsePublicID(publicID); parsed != nil {
			return parsed
		}
	}

	if def := r.Default(); def != nil {
		return def.ParsePublicID(publicID)
	}
	return nil
}

// CacheKey derives the storage key for a resource, guaranteeing that keys
// from different providers never collide: the default adapter's keys stay
// unprefixed, every other adapter's key carries its id as a prefix.
// Idempotent when the adapter already prefixed its key.
func (r *Registry) CacheKey(adapter Adapter, resourceID string) string {
	candidate := adapter.CacheKey(resourceID)
	if adapter == r.Default() {
		return candidate
	}
	prefix := adapter.ID() + ":"
	if strings.HasPrefix(candidate, prefix) {
		return candidate
	}
	return prefix + candidate
}

// ResourceIDFromCacheKey inverts the registry-level prefixing.
func (r *Registry) ResourceIDFromCacheKey(adapter Adapter, cacheKey string) string {
	prefix := adapter.ID() + ":"
	return strings.TrimPrefix(cacheKey, prefix)
}

// ToPublicID maps a resource id to its public form via its adapter.
func (r *Registry) ToPublicID(adapter Adapter, resourceID string) string {
	return adapter.ToPublicID(resourceID)
}

// SharedRateLimit returns the registry-wide rate-limit default.
func (r *Registry) SharedRateLimit() RateLimitConfig {
	return r.rateLimit
}

// RateLimitFor returns the adapter's rate-limit override, or the shared
// default.
func (r *Registry) RateLimitFor(adapter Adapter) RateLimitConfig {
	if cfg := adapter.Config().RateLimit; cfg != nil {
		return *cfg
	}
	return r.rateLimit
}
