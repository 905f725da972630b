package profile

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

// Spatial is a scalar function of physical position
type Spatial interface {
	ValueAt(pos [3]float64) float64
}

// Temporal is a scalar function of time
type Temporal interface {
	ValueAtTime(t float64) float64
}

// Constant is uniform in space and time
type Constant float64

func (c Constant) ValueAt([3]float64) float64 { return float64(c) }
func (c Constant) ValueAtTime(float64) float64 { return float64(c) }

// Func adapts a Go function of (x, y, z, t)
type Func func(x, y, z, t float64) float64

func (f Func) ValueAt(pos [3]float64) float64 { return f(pos[0], pos[1], pos[2], 0) }
func (f Func) ValueAtTime(t float64) float64 { return f(0, 0, 0, t) }

// Functions available inside profile expressions
var Functions = map[string]govaluate.ExpressionFunction{
	"exp":  unary("exp", math.Exp),
	"sin":  unary("sin", math.Sin),
	"cos":  unary("cos", math.Cos),
	"sqrt": unary("sqrt", math.Sqrt),
	"abs":  unary("abs", math.Abs),
	"step": unary("step", func(x float64) float64 {
		if x >= 0 {
			return 1
		}
		return 0
	}),
	// gauss(x, center, width) = exp(-((x-center)/width)^2)
	"gauss": func(args ...interface{}) (interface{}, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("profile: got %d arguments for function 'gauss', but needs 3", len(args))
		}
		x, err := toFloat(args)
		if err != nil {
			return nil, err
		}
		u := (x[0] - x[1]) / x[2]
		return math.Exp(-u * u), nil
	},
}

func unary(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("profile: got %d arguments for function '%s', but needs 1", len(args), name)
		}
		x, err := toFloat(args)
		if err != nil {
			return nil, err
		}
		return f(x[0]), nil
	}
}

func toFloat(args []interface{}) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("profile: argument %d is %T, not a number", i, a)
		}
		out[i] = v
	}
	return out, nil
}

// Expression is a profile written as text in the variables x, y, z, t
// (and the constant pi)
type Expression struct {
	Source string
	expr   *govaluate.EvaluableExpression
}

// NewExpression parses src and checks that it evaluates to a number
func NewExpression(src string) (*Expression, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(src, Functions)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", src, err)
	}
	for _, v := range expr.Vars() {
		switch v {
		case "x", "y", "z", "t", "pi":
		default:
			return nil, fmt.Errorf("profile %q: unknown variable %q", src, v)
		}
	}
	e := &Expression{Source: src, expr: expr}
	if _, err := e.Eval(0.5, 0.5, 0.5, 0.5); err != nil {
		return nil, err
	}
	return e, nil
}

// Eval evaluates the expression at one point of space-time
func (e *Expression) Eval(x, y, z, t float64) (float64, error) {
	params := map[string]interface{}{"x": x, "y": y, "z": z, "t": t, "pi": math.Pi}
	result, err := e.expr.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("profile %q: %w", e.Source, err)
	}
	switch v := result.(type) {
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("profile %q: result is %T, not a number", e.Source, result)
	}
}

// ValueAt evaluates at a position with t=0. The expression was checked when
// built, so an evaluation error here is a programming error.
func (e *Expression) ValueAt(pos [3]float64) float64 {
	v, err := e.Eval(pos[0], pos[1], pos[2], 0)
	if err != nil {
		panic(err)
	}
	return v
}

// ValueAtTime evaluates at the origin at time t
func (e *Expression) ValueAtTime(t float64) float64 {
	v, err := e.Eval(0, 0, 0, t)
	if err != nil {
		panic(err)
	}
	return v
}
