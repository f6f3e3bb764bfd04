package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Body performs the actual work of a step. It reads inputs from the
// artifact context and returns the values for every declared output key.
type Body func(ctx context.Context, artifacts *Context) (map[string]any, error)

// Step is one named unit of pipeline work with declared input and output
// keys. Steps are stateless aside from configuration; the per-level and
// per-language variants are distinct instances with distinct names.
type Step struct {
	Name    string
	Level   string
	Lang    string
	Inputs  []string
	Outputs []string
	Body    Body
}

// NewStep builds a generic step.
func NewStep(name string, inputs, outputs []string, body Body) Step {
	return Step{Name: name, Inputs: inputs, Outputs: outputs, Body: body}
}

// NewLevelStep builds a per-difficulty-level step. The level is folded
// into the step name so it can serve as a resumption key.
func NewLevelStep(name, level string, inputs, outputs []string, body Body) Step {
	return Step{
		Name:    fmt.Sprintf("%s_%s", name, level),
		Level:   level,
		Inputs:  inputs,
		Outputs: outputs,
		Body:    body,
	}
}

// NewLevelLangStep builds a per-level, per-language step.
func NewLevelLangStep(name, level, lang string, inputs, outputs []string, body Body) Step {
	return Step{
		Name:    fmt.Sprintf("%s_%s_%s", name, level, lang),
		Level:   level,
		Lang:    lang,
		Inputs:  inputs,
		Outputs: outputs,
		Body:    body,
	}
}

// StepInputError reports required context keys missing before execution.
// It indicates an ordering or contract bug, not a transient failure.
type StepInputError struct {
	Step    string
	Missing []string
}

func (e *StepInputError) Error() string {
	return fmt.Sprintf("step %s: missing required inputs: %s", e.Step, strings.Join(e.Missing, ", "))
}

// StepOutputError reports declared output keys absent from a step body's
// returned map. It catches silent implementation bugs before they
// propagate downstream.
type StepOutputError struct {
	Step    string
	Missing []string
}

func (e *StepOutputError) Error() string {
	return fmt.Sprintf("step %s: body did not produce declared outputs: %s", e.Step, strings.Join(e.Missing, ", "))
}

// IsContractError reports whether err is a step input or output contract
// violation. Contract errors propagate immediately without step-level
// retry.
func IsContractError(err error) bool {
	var inputErr *StepInputError
	var outputErr *StepOutputError
	return errors.As(err, &inputErr) || errors.As(err, &outputErr)
}

// Execute validates the step's inputs, runs the body, validates the
// declared outputs, and only then merges them into the artifact context.
// A failed output validation leaves the context untouched.
func (s Step) Execute(ctx context.Context, artifacts *Context) (map[string]any, error) {
	if missing := artifacts.ValidateKeys(s.Inputs); len(missing) > 0 {
		return nil, &StepInputError{Step: s.Name, Missing: missing}
	}

	outputs, err := s.Body(ctx, artifacts)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, key := range s.Outputs {
		if _, ok := outputs[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &StepOutputError{Step: s.Name, Missing: missing}
	}

	if err := artifacts.Update(outputs); err != nil {
		return nil, fmt.Errorf("step %s: merge outputs: %w", s.Name, err)
	}
	return outputs, nil
}
