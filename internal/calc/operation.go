// Package calc holds the arithmetic applied when an operation is appended to
// a calculation chain.
package calc

import (
	"errors"
	"fmt"
	"math"
)

type Operation string

const (
	Add      Operation = "add"
	Subtract Operation = "subtract"
	Multiply Operation = "multiply"
	Divide   Operation = "divide"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrDivisionByZero   = errors.New("division by zero is not allowed")
	ErrNonFinite        = errors.New("value must be a finite number")
)

// Operations lists the supported operations in display order.
var Operations = []Operation{Add, Subtract, Multiply, Divide}

func (op Operation) Valid() bool {
	switch op {
	case Add, Subtract, Multiply, Divide:
		return true
	}
	return false
}

func (op Operation) String() string {
	return string(op)
}

func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
	return op, nil
}

// Finite reports whether v is neither NaN nor an infinity.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Check validates an (operation, operand) pair without computing anything.
// Division by an operand of exactly zero is rejected here so Apply is never
// asked to produce an infinity or NaN from it.
func Check(op Operation, operand float64) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOperation, string(op))
	}
	if !Finite(operand) {
		return ErrNonFinite
	}
	if op == Divide && operand == 0 {
		return ErrDivisionByZero
	}
	return nil
}

// Apply computes left <op> right with plain float64 arithmetic.
func Apply(left float64, op Operation, right float64) (float64, error) {
	if err := Check(op, right); err != nil {
		return 0, err
	}

	switch op {
	case Add:
		return left + right, nil
	case Subtract:
		return left - right, nil
	case Multiply:
		return left * right, nil
	default:
		return left / right, nil
	}
}
