package tools

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

var exprOptions = []expr.Option{
	expr.Optimize(false),
	expr.Function("str", func(params ...any) (any, error) {
		return formatValue(params[0]), nil
	}, new(func(any) string)),
	expr.Function("randint", func(params ...any) (any, error) {
		n, ok := params[0].(int)
		if !ok || n <= 0 {
			return nil, fmt.Errorf("randint expects a positive integer")
		}
		return rand.IntN(n), nil
	}, new(func(int) int)),
	expr.Function("rand", func(params ...any) (any, error) {
		return rand.Float64(), nil
	}, new(func() float64)),
	expr.Function("ipow", func(params ...any) (any, error) {
		return intPow(params[0].(int), params[1].(int)), nil
	}, new(func(int, int) any)),
	expr.Operator("**", "ipow"),
}

// Evaluate evaluates a sandboxed arithmetic or logical expression and
// formats the result. Division by zero yields "inf"; any other failure yields
// an "Error evaluating expression" message instead of an error.
func Evaluate(expression string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = formatError(fmt.Errorf("%v", r))
		}
	}()

	// expr treats "//" as a comment, which would silently drop the divisor.
	if strings.Contains(expression, "//") {
		return "Error evaluating expression: floor division (//) is not supported"
	}

	program, err := expr.Compile(expression, exprOptions...)
	if err != nil {
		return formatError(err)
	}
	result, err := expr.Run(program, nil)
	if err != nil {
		return formatError(err)
	}
	return formatValue(result)
}

// intPow keeps integer powers integral and falls back to float on negative
// exponents or overflow.
func intPow(base, exp int) any {
	switch {
	case exp < 0:
		return math.Pow(float64(base), float64(exp))
	case base == 0 || base == 1:
		if exp == 0 {
			return 1
		}
		return base
	case base == -1:
		if exp%2 == 0 {
			return 1
		}
		return -1
	}
	result := 1
	for i := 0; i < exp; i++ {
		next := result * base
		if next/base != result {
			return math.Pow(float64(base), float64(exp))
		}
		result = next
	}
	return result
}

func formatError(err error) string {
	if strings.Contains(err.Error(), "divide by zero") {
		return formatFloat(math.Inf(1))
	}
	return "Error evaluating expression: " + err.Error()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	case f == math.Trunc(f) && math.Abs(f) < 1e16:
		return strconv.FormatFloat(f, 'f', 1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}
