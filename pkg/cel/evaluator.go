// Package cel evaluates routing expressions over user messages.
package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"junction/pkg/models"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("address", cel.StringType),
		cel.Variable("to", cel.StringType),
		cel.Variable("from", cel.StringType),
		cel.Variable("group", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("session_event", cel.StringType),
		cel.Variable("transport_type", cel.StringType),
		cel.Variable("transport_metadata", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("helper_metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Program is a compiled boolean routing expression.
type Program struct {
	expression string
	program    cel.Program
}

// Compile checks that expression is valid and evaluates to a bool.
func (e *Evaluator) Compile(expression string) (*Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("routing expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Program{expression: expression, program: program}, nil
}

// Match evaluates the program against msg. address is the address the
// routing decision is made on: to_addr for inbound messages, from_addr of
// the original outbound message for events.
func (p *Program) Match(ctx context.Context, address string, msg models.Message) (bool, error) {
	vars := map[string]interface{}{
		"address":            address,
		"to":                 msg.ToAddr,
		"from":               msg.FromAddr,
		"group":              msg.GroupAddr,
		"content":            msg.ContentString(),
		"session_event":      msg.SessionEvent,
		"transport_type":     msg.TransportType,
		"transport_metadata": nonNil(msg.TransportMetadata),
		"helper_metadata":    nonNil(msg.HelperMetadata),
	}

	result, _, err := p.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression %q: %w", p.expression, err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}
	return matched, nil
}

func nonNil(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
