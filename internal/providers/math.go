package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

var (
	mathNoise = []string{"solve", "calculate", "what is ", "the value of ", "?", "equals", "=", "find "}

	mathWords = strings.NewReplacer(
		"multiplied by", "*",
		"divided by", "/",
		"plus", "+",
		"minus", "-",
		"times", "*",
		"to the power of", "**",
	)

	// x used as a multiplication sign between two operands.
	timesPattern = regexp.MustCompile(`([0-9.)])\s*x\s*([0-9.(])`)
)

// ErrNoExpression is returned when nothing evaluable remains after cleanup.
var ErrNoExpression = errors.New("no expression to evaluate")

// MathSolver evaluates arithmetic. Expressions it cannot parse are handed to
// the fallback answerer, when one is set.
type MathSolver struct {
	fallback router.Answerer
}

// NewMathSolver creates a solver. fallback may be nil.
func NewMathSolver(fallback router.Answerer) *MathSolver {
	return &MathSolver{fallback: fallback}
}

// Solve answers utterance with "The answer is N".
func (m *MathSolver) Solve(ctx context.Context, utterance string) (string, error) {
	expression := NormalizeExpression(utterance)

	value, evalErr := Evaluate(expression)
	if evalErr == nil {
		return "The answer is " + value, nil
	}

	if m.fallback == nil {
		return "", evalErr
	}
	answer, err := m.fallback.Generate(ctx, "Solve this math problem: "+utterance)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %v; fallback: %w", expression, evalErr, err)
	}
	return "AI says: " + strings.TrimSpace(answer), nil
}

// NormalizeExpression turns a spoken math request into an expression.
func NormalizeExpression(utterance string) string {
	s := strings.ToLower(utterance)
	for _, noise := range mathNoise {
		s = strings.ReplaceAll(s, noise, " ")
	}
	s = mathWords.Replace(s)
	s = strings.ReplaceAll(s, "^", "**")
	for {
		next := timesPattern.ReplaceAllString(s, "${1}*${2}")
		if next == s {
			break
		}
		s = next
	}
	return strings.Join(strings.Fields(s), " ")
}

// Evaluate computes a numeric expression and formats the result.
func Evaluate(expression string) (string, error) {
	if strings.TrimSpace(expression) == "" {
		return "", ErrNoExpression
	}
	program, err := expr.Compile(expression)
	if err != nil {
		return "", fmt.Errorf("parse expression: %w", err)
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return "", fmt.Errorf("evaluate expression: %w", err)
	}
	return formatNumber(out)
}

func formatNumber(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("result is not a finite number")
		}
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10), nil
		}
		return strconv.FormatFloat(n, 'g', 10, 64), nil
	default:
		return "", fmt.Errorf("result %v is not a number", v)
	}
}
