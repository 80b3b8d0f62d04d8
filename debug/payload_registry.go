package debug

import (
	"fmt"
	"maps"
	"sync"

	"github.com/Bipboy/urql/errors"
)

// PayloadFactory creates an empty payload instance for an event type.
// The factory returns an any so external packages can register payload
// shapes without this package importing them.
type PayloadFactory func() any

// PayloadRegistration holds factory and metadata for one event type.
type PayloadRegistration struct {
	Type        string         `json:"type"`        // Event type tag (e.g., "cacheHit")
	Factory     PayloadFactory `json:"-"`           // Factory function (not serializable)
	Description string         `json:"description"` // Human-readable description
}

// PayloadRegistry maps event type tags to payload shapes, forming an
// open tagged union: registered tags get typed payloads, unregistered
// tags still flow through events as plain values.
type PayloadRegistry struct {
	registrations map[string]*PayloadRegistration
	mu            sync.RWMutex
}

// NewPayloadRegistry creates a new empty payload registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{
		registrations: make(map[string]*PayloadRegistration),
	}
}

// RegisterPayload registers a payload factory with validation.
// Returns an error if the type is already registered.
func (pr *PayloadRegistry) RegisterPayload(registration *PayloadRegistration) error {
	if registration == nil || registration.Factory == nil || registration.Type == "" {
		return errors.WrapInvalid(
			errors.ErrInvalidConfig, "PayloadRegistry", "RegisterPayload",
			"registration validation")
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()

	if _, exists := pr.registrations[registration.Type]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("payload type %q already registered", registration.Type),
			"PayloadRegistry", "RegisterPayload", "duplicate type check")
	}

	pr.registrations[registration.Type] = registration
	return nil
}

// NewPayload creates a payload instance for the given event type.
// Returns nil for unregistered types.
func (pr *PayloadRegistry) NewPayload(eventType string) any {
	pr.mu.RLock()
	registration, exists := pr.registrations[eventType]
	pr.mu.RUnlock()

	if !exists {
		return nil
	}
	return registration.Factory()
}

// ListPayloads returns a copy of all registrations.
func (pr *PayloadRegistry) ListPayloads() map[string]*PayloadRegistration {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return maps.Clone(pr.registrations)
}

// Global payload registry. Event payloads are data shapes, not
// lifecycle components, so init-time registration is appropriate.
var globalPayloadRegistry = NewPayloadRegistry()

// RegisterPayload registers a payload factory globally.
func RegisterPayload(registration *PayloadRegistration) error {
	return globalPayloadRegistry.RegisterPayload(registration)
}

// NewPayload creates a payload instance using the global registry.
// Returns nil if no factory is registered for the event type.
func NewPayload(eventType string) any {
	return globalPayloadRegistry.NewPayload(eventType)
}

// ListPayloads returns all globally registered payload types.
func ListPayloads() map[string]*PayloadRegistration {
	return globalPayloadRegistry.ListPayloads()
}
