package calc

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// maxIntBits bounds integer results so a single expression cannot exhaust memory.
const maxIntBits = 4096

var (
	errDivisionByZero = errors.New("division by zero")
	errTooLarge       = errors.New("result too large")
)

type valueKind int

const (
	kindInt valueKind = iota
	kindFloat
	kindList
)

// value is a number with Python semantics: arbitrary precision integers,
// IEEE floats, or a list literal (only valid as a function argument).
type value struct {
	kind  valueKind
	i     *big.Int
	f     float64
	items []value
}

func intValue(i *big.Int) value  { return value{kind: kindInt, i: i} }
func floatValue(f float64) value { return value{kind: kindFloat, f: f} }
func listValue(v []value) value  { return value{kind: kindList, items: v} }
func smallInt(n int64) value     { return intValue(big.NewInt(n)) }
func (v value) isNumber() bool   { return v.kind == kindInt || v.kind == kindFloat }
func (v value) isInt() bool      { return v.kind == kindInt }

func (v value) float() float64 {
	if v.kind == kindFloat {
		return v.f
	}
	f, _ := new(big.Float).SetInt(v.i).Float64()
	return f
}

func checkInt(i *big.Int) (value, error) {
	if i.BitLen() > maxIntBits {
		return value{}, errTooLarge
	}
	return intValue(i), nil
}

// String formats the value the way Python's repr does for int, float and list.
func (v value) String() string {
	switch v.kind {
	case kindInt:
		return v.i.String()
	case kindList:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return formatFloat(v.f)
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
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Python pads exponents to two digits: 1e+16, 1e-05.
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := exp[1:]
		if len(digits) < 2 {
			digits = "0" + digits
		}
		return mant + "e" + sign + digits
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

func add(a, b value) (value, error) {
	if a.isInt() && b.isInt() {
		return checkInt(new(big.Int).Add(a.i, b.i))
	}
	return floatValue(a.float() + b.float()), nil
}

func sub(a, b value) (value, error) {
	if a.isInt() && b.isInt() {
		return checkInt(new(big.Int).Sub(a.i, b.i))
	}
	return floatValue(a.float() - b.float()), nil
}

func mul(a, b value) (value, error) {
	if a.isInt() && b.isInt() {
		if a.i.BitLen()+b.i.BitLen() > maxIntBits+1 {
			return value{}, errTooLarge
		}
		return checkInt(new(big.Int).Mul(a.i, b.i))
	}
	return floatValue(a.float() * b.float()), nil
}

func trueDiv(a, b value) (value, error) {
	if b.float() == 0 {
		return value{}, errDivisionByZero
	}
	if a.isInt() && b.isInt() {
		q, _ := new(big.Rat).SetFrac(a.i, b.i).Float64()
		return floatValue(q), nil
	}
	return floatValue(a.float() / b.float()), nil
}

// floorDivMod returns Python's (a // b, a % b): the quotient rounds toward
// negative infinity and the remainder takes the sign of the divisor.
func floorDivMod(a, b value) (value, value, error) {
	if a.isInt() && b.isInt() {
		if b.i.Sign() == 0 {
			return value{}, value{}, errDivisionByZero
		}
		q, r := new(big.Int).QuoRem(a.i, b.i, new(big.Int))
		if r.Sign() != 0 && r.Sign() != b.i.Sign() {
			q.Sub(q, big.NewInt(1))
			r.Add(r, b.i)
		}
		return intValue(q), intValue(r), nil
	}
	x, y := a.float(), b.float()
	if y == 0 {
		return value{}, value{}, errDivisionByZero
	}
	mod := math.Mod(x, y)
	if mod != 0 && (mod < 0) != (y < 0) {
		mod += y
	}
	return floatValue(math.Floor(x / y)), floatValue(mod), nil
}

func power(a, b value) (value, error) {
	if a.isInt() && b.isInt() {
		if b.i.Sign() >= 0 {
			// |a| <= 1 never grows, otherwise the result has at least
			// b*(bitlen(a)-1) bits.
			if a.i.CmpAbs(big.NewInt(1)) > 0 {
				if !b.i.IsInt64() || b.i.Int64() > maxIntBits/int64(a.i.BitLen()-1) {
					return value{}, errTooLarge
				}
			}
			return checkInt(new(big.Int).Exp(a.i, b.i, nil))
		}
		if a.i.Sign() == 0 {
			return value{}, errors.New("0 cannot be raised to a negative power")
		}
	}
	x, y := a.float(), b.float()
	if x == 0 && y < 0 {
		return value{}, errors.New("0.0 cannot be raised to a negative power")
	}
	if x < 0 && y != math.Trunc(y) {
		return value{}, errors.New("negative number cannot be raised to a fractional power")
	}
	r := math.Pow(x, y)
	if math.IsInf(r, 0) {
		return value{}, errors.New("numerical result out of range")
	}
	return floatValue(r), nil
}

func negate(v value) value {
	if v.isInt() {
		return intValue(new(big.Int).Neg(v.i))
	}
	return floatValue(-v.f)
}

func compare(a, b value) int {
	if a.isInt() && b.isInt() {
		return a.i.Cmp(b.i)
	}
	x, y := a.float(), b.float()
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}
