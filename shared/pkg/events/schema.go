package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Schema is the contract for the payload of one event type.
type Schema interface {
	EventType() string
	Validate(payload json.RawMessage) error
}

// TypedSchema binds an event type to the Go type its payload decodes into.
// Payload fields are checked with `validate` struct tags.
type TypedSchema[T any] struct {
	eventType string
}

func NewSchema[T any](eventType string) TypedSchema[T] {
	return TypedSchema[T]{eventType: eventType}
}

func (s TypedSchema[T]) EventType() string { return s.eventType }

func (s TypedSchema[T]) Validate(payload json.RawMessage) error {
	_, err := s.Decode(payload)
	return err
}

// Decode returns the typed payload or an ErrSchemaMismatch.
func (s TypedSchema[T]) Decode(payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, mismatch("%s: empty payload", s.eventType)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&v); err != nil {
		return v, mismatch("%s: %v", s.eventType, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return v, mismatch("%s: field %s failed %q", s.eventType, verrs[0].Namespace(), verrs[0].Tag())
		}
		return v, mismatch("%s: %v", s.eventType, err)
	}
	return v, nil
}

// Registry maps event types to their schemas.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
	now     func() time.Time
}

func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{schemas: make(map[string]Schema, len(schemas)), now: time.Now}
	for _, s := range schemas {
		r.schemas[s.EventType()] = s
	}
	return r
}

func (r *Registry) Register(s Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[s.EventType()]; ok {
		return fmt.Errorf("schema for %q already registered", s.EventType())
	}
	r.schemas[s.EventType()] = s
	return nil
}

func (r *Registry) Lookup(eventType string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[eventType]
	return s, ok
}

// Validate checks env.Payload against the schema registered for env.EventType.
func (r *Registry) Validate(env Envelope) error {
	s, ok := r.Lookup(env.EventType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	return s.Validate(env.Payload)
}

// New builds an envelope with a fresh eventId for a payload that matches
// the registered schema.
func (r *Registry) New(eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventType:  eventType,
		EventID:    uuid.NewString(),
		OccurredAt: r.now().UTC(),
		Payload:    raw,
	}
	if err := r.Validate(env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
