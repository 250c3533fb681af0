// Package calc evaluates arithmetic expressions without executing anything
// but arithmetic. It backs the local "calculator" tool.
package calc

import (
	"errors"
	"fmt"
	"strings"
)

// MaxExpressionLength bounds the accepted input.
const MaxExpressionLength = 1024

// ErrEmptyExpression is returned for blank input.
var ErrEmptyExpression = errors.New("empty expression")

// Evaluate parses and evaluates expr, returning the result formatted the way
// Python would print it ("4", "15.0", "0.1").
func Evaluate(expr string) (string, error) {
	if strings.TrimSpace(expr) == "" {
		return "", ErrEmptyExpression
	}
	if len(expr) > MaxExpressionLength {
		return "", fmt.Errorf("expression exceeds %d characters", MaxExpressionLength)
	}
	toks, err := lex(expr)
	if err != nil {
		return "", err
	}
	p := &parser{toks: toks}
	v, err := p.parse()
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Calculate is Evaluate with the result rendered for the reasoning engine.
// It never fails: errors become a descriptive message.
func Calculate(expr string) string {
	result, err := Evaluate(expr)
	if err != nil {
		return fmt.Sprintf("Error calculating '%s': %v. Please check the expression syntax.", expr, err)
	}
	return "Result: " + result
}
