package router

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"junction/internal/constants"
	"junction/pkg/cel"
	"junction/pkg/errors"
	"junction/pkg/models"
)

// Matcher decides whether a destination receives a message. address is the
// inbound to_addr, or the from_addr of the original outbound message when
// routing an event.
type Matcher interface {
	Match(ctx context.Context, address string, msg models.Message) (bool, error)
}

// Policy is a routing strategy selected by a router's type.
type Policy interface {
	// ValidateConfig checks the shape of a router config. Checks that need
	// other routers or channels are done by the service.
	ValidateConfig(config map[string]interface{}) error
	ValidateDestinationConfig(config map[string]interface{}) error
	Compile(config map[string]interface{}) (Matcher, error)
}

type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

// DefaultRegistry knows the from_address and cel policies.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	r.Register(constants.RouterTypeFromAddress, FromAddressPolicy{})

	celPolicy, err := NewCELPolicy()
	if err != nil {
		return nil, err
	}
	r.Register(constants.RouterTypeCEL, celPolicy)
	return r, nil
}

func (r *Registry) Register(name string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[name] = p
}

func (r *Registry) Get(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func invalidConfig(format string, args ...interface{}) error {
	return errors.ErrInvalidRouterConfig.WithMessage(format, args...)
}

func invalidDestinationConfig(format string, args ...interface{}) error {
	return errors.ErrInvalidRouterDestinationConfig.WithMessage(format, args...)
}

// validateChannelField checks the "channel" key every policy requires.
func validateChannelField(config map[string]interface{}) error {
	raw, ok := config["channel"]
	if !ok {
		return invalidConfig("channel: Missing data for required field.")
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return invalidConfig("channel: Not a valid string.")
	}
	return nil
}

func validateDefaultField(config map[string]interface{}) error {
	raw, ok := config["default"]
	if !ok {
		return nil
	}
	if _, ok := raw.(bool); !ok {
		return invalidDestinationConfig("default: Not a valid boolean.")
	}
	return nil
}

func requiredString(config map[string]interface{}, field string) (string, error) {
	raw, ok := config[field]
	if !ok {
		return "", invalidDestinationConfig("%s: Missing data for required field.", field)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", invalidDestinationConfig("%s: Not a valid string.", field)
	}
	return s, nil
}

// FromAddressPolicy routes on a regular expression per destination. The
// expression must match at the start of the address.
type FromAddressPolicy struct{}

func (FromAddressPolicy) ValidateConfig(config map[string]interface{}) error {
	return validateChannelField(config)
}

func (p FromAddressPolicy) ValidateDestinationConfig(config map[string]interface{}) error {
	_, err := p.compile(config)
	return err
}

func (p FromAddressPolicy) Compile(config map[string]interface{}) (Matcher, error) {
	return p.compile(config)
}

func (FromAddressPolicy) compile(config map[string]interface{}) (*regexMatcher, error) {
	expr, err := requiredString(config, "regular_expression")
	if err != nil {
		return nil, err
	}
	if err := validateDefaultField(config); err != nil {
		return nil, err
	}
	re, err := regexp.Compile("^(?:" + expr + ")")
	if err != nil {
		return nil, invalidDestinationConfig("regular_expression: Invalid regular expression: %v", err)
	}
	return &regexMatcher{re: re}, nil
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) Match(_ context.Context, address string, _ models.Message) (bool, error) {
	return m.re.MatchString(address), nil
}

// CELPolicy routes on a boolean CEL expression per destination.
type CELPolicy struct {
	eval *cel.Evaluator
}

func NewCELPolicy() (*CELPolicy, error) {
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL policy: %w", err)
	}
	return &CELPolicy{eval: eval}, nil
}

func (*CELPolicy) ValidateConfig(config map[string]interface{}) error {
	return validateChannelField(config)
}

func (p *CELPolicy) ValidateDestinationConfig(config map[string]interface{}) error {
	_, err := p.Compile(config)
	return err
}

func (p *CELPolicy) Compile(config map[string]interface{}) (Matcher, error) {
	expr, err := requiredString(config, "expression")
	if err != nil {
		return nil, err
	}
	if err := validateDefaultField(config); err != nil {
		return nil, err
	}
	program, err := p.eval.Compile(expr)
	if err != nil {
		return nil, invalidDestinationConfig("expression: %v", err)
	}
	return program, nil
}
