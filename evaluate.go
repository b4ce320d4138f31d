package state

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoEvaluator = errors.New("state: evaluator not configured")

// Evaluate executes an ad-hoc expression against the instance's current
// attribute snapshot using the configured evaluator. Derived properties are
// not part of the snapshot; declared dependencies are the only values an
// expression-backed derived sees, but ad-hoc evaluation sees every committed
// attribute.
func (s *State) Evaluate(expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("state: expression must not be empty")
	}
	ctx := DerivedContext{Snapshot: s.snapshotAttributes()}.withDefaultNow().withDefaultMaps()
	return s.evaluateExpression(ctx, expr)
}

// evaluateExpression runs one expression with timing and logging, used both
// by ad-hoc Evaluate and by expression-backed derived properties.
func (s *State) evaluateExpression(ctx DerivedContext, expr string) (any, error) {
	evaluator, err := s.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(engine, ctx.Key, expr, evalErr)
	s.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Key:      ctx.Key,
		Expr:     expr,
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

func (s *State) resolveEvaluator() (Evaluator, error) {
	if s.cfg.evaluator != nil {
		return s.cfg.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if cache := s.cfg.programCache; cache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(cache))
	}
	if registry := s.cfg.functions; registry != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(registry))
	}
	defaultEvaluator := NewExprEvaluator(exprOpts...)
	if defaultEvaluator == nil {
		return nil, ErrNoEvaluator
	}
	s.cfg.evaluator = defaultEvaluator
	return defaultEvaluator, nil
}

func (s *State) evaluatorLogger() EvaluatorLogger {
	if s.cfg.logger != nil {
		return s.cfg.logger
	}
	return noopEvaluatorLogger{}
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*state.exprEvaluator":
		return "expr"
	case "*state.celEvaluator":
		return "cel"
	case "*state.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
