package calc

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

type function func(args []value) (value, error)

// functions is the complete allow-list of callable names.
var functions = map[string]function{
	"abs":   fnAbs,
	"round": fnRound,
	"min":   func(args []value) (value, error) { return extremum(args, -1) },
	"max":   func(args []value) (value, error) { return extremum(args, 1) },
	"sum":   fnSum,
	"pow":   fnPow,
}

// AllowedFunctions lists the callable names accepted by Evaluate.
func AllowedFunctions() []string {
	return []string{"abs", "round", "min", "max", "sum", "pow"}
}

func arity(args []value, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return fmt.Errorf("expected %d argument(s), got %d", lo, len(args))
		}
		return fmt.Errorf("expected %d to %d arguments, got %d", lo, hi, len(args))
	}
	for _, a := range args {
		if !a.isNumber() {
			return errors.New("arguments must be numbers")
		}
	}
	return nil
}

func fnAbs(args []value) (value, error) {
	if err := arity(args, 1, 1); err != nil {
		return value{}, err
	}
	v := args[0]
	if v.isInt() {
		return intValue(new(big.Int).Abs(v.i)), nil
	}
	return floatValue(math.Abs(v.f)), nil
}

// fnRound rounds half to even. round(x) yields an int; round(x, n) keeps
// the type of x.
func fnRound(args []value) (value, error) {
	if err := arity(args, 1, 2); err != nil {
		return value{}, err
	}
	x := args[0]

	if len(args) == 1 {
		if x.isInt() {
			return x, nil
		}
		if math.IsInf(x.f, 0) || math.IsNaN(x.f) {
			return value{}, errors.New("cannot convert infinity or NaN to integer")
		}
		i, _ := big.NewFloat(math.RoundToEven(x.f)).Int(nil)
		return intValue(i), nil
	}

	nd := args[1]
	if !nd.isInt() || !nd.i.IsInt64() {
		return value{}, errors.New("ndigits must be an integer")
	}
	n := nd.i.Int64()

	if x.isInt() {
		if n >= 0 {
			return x, nil
		}
		return roundIntDigits(x.i, -n), nil
	}
	if math.IsInf(x.f, 0) || math.IsNaN(x.f) {
		return x, nil
	}
	if n >= 0 {
		if n > 300 {
			return x, nil
		}
		r, err := strconv.ParseFloat(strconv.FormatFloat(x.f, 'f', int(n), 64), 64)
		if err != nil {
			return value{}, err
		}
		return floatValue(r), nil
	}
	scale := math.Pow(10, float64(-n))
	if math.IsInf(scale, 1) {
		return floatValue(math.Copysign(0, x.f)), nil
	}
	return floatValue(math.RoundToEven(x.f/scale) * scale), nil
}

// roundIntDigits rounds i to a multiple of 10^k, ties to even.
func roundIntDigits(i *big.Int, k int64) value {
	if k > maxIntBits {
		return smallInt(0)
	}
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(k), nil)
	q, r, _ := floorDivMod(intValue(i), intValue(pow))
	twice := new(big.Int).Mul(r.i, big.NewInt(2))
	switch c := twice.Cmp(pow); {
	case c > 0, c == 0 && q.i.Bit(0) == 1:
		q.i.Add(q.i, big.NewInt(1))
	}
	return intValue(q.i.Mul(q.i, pow))
}

// spread accepts either a single list argument or the values themselves.
func spread(args []value) []value {
	if len(args) == 1 && args[0].kind == kindList {
		return args[0].items
	}
	return args
}

func extremum(args []value, sign int) (value, error) {
	items := spread(args)
	if len(items) == 0 {
		return value{}, errors.New("expected at least one value")
	}
	best := items[0]
	for _, v := range items {
		if !v.isNumber() {
			return value{}, errors.New("arguments must be numbers")
		}
		if compare(v, best)*sign > 0 {
			best = v
		}
	}
	return best, nil
}

func fnSum(args []value) (value, error) {
	var items []value
	total := smallInt(0)

	switch {
	case len(args) >= 1 && args[0].kind == kindList:
		if len(args) > 2 {
			return value{}, fmt.Errorf("expected at most 2 arguments, got %d", len(args))
		}
		items = args[0].items
		if len(args) == 2 {
			if !args[1].isNumber() {
				return value{}, errors.New("start must be a number")
			}
			total = args[1]
		}
	default:
		items = args
	}

	for _, v := range items {
		if !v.isNumber() {
			return value{}, errors.New("arguments must be numbers")
		}
		var err error
		if total, err = add(total, v); err != nil {
			return value{}, err
		}
	}
	return total, nil
}

func fnPow(args []value) (value, error) {
	if err := arity(args, 2, 3); err != nil {
		return value{}, err
	}
	if len(args) == 2 {
		return power(args[0], args[1])
	}
	base, exp, mod := args[0], args[1], args[2]
	if !base.isInt() || !exp.isInt() || !mod.isInt() {
		return value{}, errors.New("3-argument pow() requires integers")
	}
	if mod.i.Sign() == 0 {
		return value{}, errors.New("pow() 3rd argument cannot be 0")
	}
	if exp.i.Sign() < 0 {
		return value{}, errors.New("pow() 2nd argument cannot be negative when 3rd argument is given")
	}
	r := new(big.Int).Exp(base.i, exp.i, new(big.Int).Abs(mod.i))
	// Exp returns a non-negative result; shift it to the sign of the modulus.
	if r.Sign() != 0 && mod.i.Sign() < 0 {
		r.Add(r, mod.i)
	}
	return intValue(r), nil
}
