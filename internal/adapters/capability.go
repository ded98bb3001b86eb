// Package adapters turns plain Go functions into capabilities the
// orchestrator can offer to the model.
package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/rs/zerolog/log"
)

// Func is the shape of a capability implementation.
type Func func(ctx context.Context, argument string) (string, error)

// FuncCapability adapts a Func to agrisage.Capability. Errors, validation
// failures and panics are rendered into the result text.
type FuncCapability struct {
	name         string
	kind         agrisage.Kind
	fn           Func
	description  string
	argumentHint string
	validator    func(string) error
	errorFormat  func(name string, err error) string
	bus          eventbus.EventBus
}

// CapabilityOption represents an option for configuring a FuncCapability.
type CapabilityOption func(*FuncCapability)

// WithDescription sets the usage hint shown to the model.
func WithDescription(description string) CapabilityOption {
	return func(c *FuncCapability) {
		c.description = description
	}
}

// WithArgumentHint documents the argument text.
func WithArgumentHint(hint string) CapabilityOption {
	return func(c *FuncCapability) {
		c.argumentHint = hint
	}
}

// WithValidator runs before the function; a failure is returned as text.
func WithValidator(validator func(string) error) CapabilityOption {
	return func(c *FuncCapability) {
		c.validator = validator
	}
}

// WithErrorFormat overrides how errors are rendered.
func WithErrorFormat(format func(name string, err error) string) CapabilityOption {
	return func(c *FuncCapability) {
		c.errorFormat = format
	}
}

// WithEventBus publishes start, success and failure events per invocation.
func WithEventBus(bus eventbus.EventBus) CapabilityOption {
	return func(c *FuncCapability) {
		c.bus = bus
	}
}

// NewCapability creates a capability named name of the given kind.
func NewCapability(name string, kind agrisage.Kind, fn Func, options ...CapabilityOption) *FuncCapability {
	c := &FuncCapability{
		name: name,
		kind: kind,
		fn:   fn,
		errorFormat: func(name string, err error) string {
			return fmt.Sprintf("Error in %s: %v", name, err)
		},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *FuncCapability) Name() string         { return c.name }
func (c *FuncCapability) Kind() agrisage.Kind  { return c.kind }
func (c *FuncCapability) Description() string  { return c.description }
func (c *FuncCapability) ArgumentHint() string { return c.argumentHint }

// Invoke implements agrisage.Capability.
func (c *FuncCapability) Invoke(ctx context.Context, argument string) (result string) {
	start := time.Now()
	eventbus.Emit(ctx, c.bus, eventbus.EventCapabilityStarted, "capability."+c.name, map[string]interface{}{
		"tool": c.name,
	})

	var failure error
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Errorf("panic: %v", r)
			result = c.errorFormat(c.name, failure)
		}
		c.finish(ctx, start, failure)
	}()

	if c.fn == nil {
		failure = fmt.Errorf("capability function is nil")
		return c.errorFormat(c.name, failure)
	}
	if c.validator != nil {
		if err := c.validator(argument); err != nil {
			failure = fmt.Errorf("invalid input: %w", err)
			return c.errorFormat(c.name, failure)
		}
	}

	out, err := c.fn(ctx, argument)
	if err != nil {
		failure = err
		return c.errorFormat(c.name, err)
	}
	return out
}

func (c *FuncCapability) finish(ctx context.Context, start time.Time, failure error) {
	meta := map[string]interface{}{
		"tool":     c.name,
		"duration": time.Since(start),
	}
	if failure != nil {
		capErr := agrisage.NewCapabilityError(c.name, failure)
		log.Warn().Err(capErr).Str("tool", c.name).Msg("capability failed")
		meta["error"] = failure.Error()
		eventbus.Emit(ctx, c.bus, eventbus.EventCapabilityFailure, "capability."+c.name, meta)
		return
	}
	eventbus.Emit(ctx, c.bus, eventbus.EventCapabilitySuccess, "capability."+c.name, meta)
}

// NotEmpty is a validator rejecting blank arguments.
func NotEmpty(argument string) error {
	if strings.TrimSpace(argument) == "" {
		return fmt.Errorf("argument cannot be empty")
	}
	return nil
}
