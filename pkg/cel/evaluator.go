package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"flattener/pkg/models"
)

// Evaluator compiles CEL expressions over a record view:
//
//	topic      string
//	partition  int (-1 when unknown)
//	offset     int
//	key        dyn
//	value      dyn
//	timestamp  int (epoch millis, 0 when unknown)
//	headers    map(string, string)
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("partition", cel.IntType),
		cel.Variable("offset", cel.IntType),
		cel.Variable("key", cel.DynType),
		cel.Variable("value", cel.DynType),
		cel.Variable("timestamp", cel.IntType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// CompilePredicate compiles a boolean expression once for repeated evaluation.
// When negate is set the predicate matches records the expression rejects.
func (e *Evaluator) CompilePredicate(expression string, negate bool) (*Predicate, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Predicate{expression: expression, negate: negate, program: program}, nil
}

// EvaluateFilter compiles and evaluates expression against rec in one step.
func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, rec models.Record) (bool, error) {
	p, err := e.CompilePredicate(expression, false)
	if err != nil {
		return false, err
	}
	return p.Matches(ctx, rec)
}

// Predicate gates which records a transformation is applied to.
type Predicate struct {
	expression string
	negate     bool
	program    cel.Program
}

func (p *Predicate) Expression() string {
	return p.expression
}

func (p *Predicate) Negated() bool {
	return p.negate
}

func (p *Predicate) Matches(ctx context.Context, rec models.Record) (bool, error) {
	result, _, err := p.program.ContextEval(ctx, recordVars(rec))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal != p.negate, nil
}

func recordVars(rec models.Record) map[string]interface{} {
	partition := int64(-1)
	if rec.Partition != nil {
		partition = int64(*rec.Partition)
	}

	var timestamp int64
	if rec.Timestamp != nil {
		timestamp = *rec.Timestamp
	}

	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}

	return map[string]interface{}{
		"topic":     rec.Topic,
		"partition": partition,
		"offset":    rec.Offset,
		"key":       rec.Key,
		"value":     rec.Value,
		"timestamp": timestamp,
		"headers":   headers,
	}
}
