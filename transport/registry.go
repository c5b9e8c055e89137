package transport

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

type registration struct {
	build Builder
	caps  Capabilities
	known bool
}

// Registry maps PubSubSystem names to transport builders. Transport packages
// register themselves from init; the participant builds through it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// DefaultRegistry is the registry the participant builds from.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds a builder whose capabilities are not declared. Build trusts
// such a transport to broadcast.
func (r *Registry) Register(name string, builder Builder) {
	r.put(name, registration{build: builder, caps: Capabilities{Name: name}})
}

// RegisterWithCapabilities adds a builder with declared capabilities.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	if caps.Name == "" {
		caps.Name = name
	}
	r.put(name, registration{build: builder, caps: caps, known: true})
}

func (r *Registry) put(name string, reg registration) {
	r.mu.Lock()
	r.entries[name] = reg
	r.mu.Unlock()
}

func (r *Registry) lookup(name string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// GetCapabilities returns the declared capabilities, or a value carrying only
// the name when none were declared.
func (r *Registry) GetCapabilities(name string) Capabilities {
	if reg, ok := r.lookup(name); ok {
		return reg.caps
	}
	return Capabilities{Name: name}
}

// Build creates the transport named by cfg.GetPubSubSystem(). A transport
// whose declared capabilities cannot deliver every message to every
// participant is refused, since discovery would silently miss announcements.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.GetPubSubSystem()
	reg, ok := r.lookup(name)
	if !ok {
		return Transport{}, fmt.Errorf("%w: unknown transport %q (registered: %v)", errspkg.ErrTransportRequired, name, r.Names())
	}
	if reg.known && !reg.caps.Broadcasts() {
		return Transport{}, fmt.Errorf("%w: transport %q cannot broadcast domain traffic", errspkg.ErrTransportRequired, name)
	}

	tr, err := reg.build(ctx, cfg, logger.With(watermill.LogFields{"transport": name}))
	if err != nil {
		return Transport{}, fmt.Errorf("build %s transport: %w", name, err)
	}
	if tr.Publisher == nil || tr.Subscriber == nil {
		_ = tr.Close()
		return Transport{}, fmt.Errorf("%w: transport %q returned an incomplete publisher/subscriber pair", errspkg.ErrTransportRequired, name)
	}
	return tr, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Register adds a builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a builder and its capabilities to the default registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport from the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
