package calc

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

// maxDepth caps nesting so pathological input cannot blow the stack.
const maxDepth = 64

// parser evaluates while it parses. The grammar, loosest binding first:
//
//	expr    = term { ("+" | "-") term }
//	term    = factor { ("*" | "/" | "//" | "%") factor }
//	factor  = ("+" | "-") factor | power
//	power   = primary [ "**" factor ]
//	primary = number | "(" expr ")" | "[" [ expr { "," expr } ] "]" | name "(" args ")"
//
// name must be on the function allow-list; nothing else can be referenced.
type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) expect(kind tokenKind, want string) error {
	t := p.next()
	if t.kind != kind {
		return fmt.Errorf("expected %s, found %s", want, t)
	}
	return nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return errors.New("expression is nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parse() (value, error) {
	v, err := p.expr()
	if err != nil {
		return value{}, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return value{}, fmt.Errorf("unexpected %s at position %d", t, t.pos)
	}
	if !v.isNumber() {
		return value{}, errors.New("expression must evaluate to a number")
	}
	return v, nil
}

func (p *parser) expr() (value, error) {
	left, err := p.term()
	if err != nil {
		return value{}, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.term()
		if err != nil {
			return value{}, err
		}
		if err := numeric(op, left, right); err != nil {
			return value{}, err
		}
		if op == "+" {
			left, err = add(left, right)
		} else {
			left, err = sub(left, right)
		}
		if err != nil {
			return value{}, err
		}
	}
	return left, nil
}

func (p *parser) term() (value, error) {
	left, err := p.factor()
	if err != nil {
		return value{}, err
	}
	for p.isOp("*", "/", "//", "%") {
		op := p.next().text
		right, err := p.factor()
		if err != nil {
			return value{}, err
		}
		if err := numeric(op, left, right); err != nil {
			return value{}, err
		}
		switch op {
		case "*":
			left, err = mul(left, right)
		case "/":
			left, err = trueDiv(left, right)
		case "//":
			left, _, err = floorDivMod(left, right)
		case "%":
			_, left, err = floorDivMod(left, right)
		}
		if err != nil {
			return value{}, err
		}
	}
	return left, nil
}

func (p *parser) factor() (value, error) {
	if err := p.enter(); err != nil {
		return value{}, err
	}
	defer p.leave()

	if p.isOp("+", "-") {
		op := p.next().text
		v, err := p.factor()
		if err != nil {
			return value{}, err
		}
		if !v.isNumber() {
			return value{}, fmt.Errorf("bad operand type for unary %s: list", op)
		}
		if op == "-" {
			return negate(v), nil
		}
		return v, nil
	}
	return p.power()
}

func (p *parser) power() (value, error) {
	base, err := p.primary()
	if err != nil {
		return value{}, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	p.next()
	exp, err := p.factor()
	if err != nil {
		return value{}, err
	}
	if err := numeric("**", base, exp); err != nil {
		return value{}, err
	}
	return power(base, exp)
}

func (p *parser) primary() (value, error) {
	if err := p.enter(); err != nil {
		return value{}, err
	}
	defer p.leave()

	t := p.next()
	var v value
	var err error

	switch t.kind {
	case tokNumber:
		v, err = parseNumber(t.text)
	case tokLParen:
		v, err = p.expr()
		if err == nil {
			err = p.expect(tokRParen, `")"`)
		}
	case tokLBracket:
		v, err = p.list()
	case tokIdent:
		v, err = p.call(t)
	default:
		return value{}, fmt.Errorf("unexpected %s at position %d", t, t.pos)
	}
	if err != nil {
		return value{}, err
	}

	// Nothing may be applied to a value: no v(...), no v[...].
	switch p.peek().kind {
	case tokLParen:
		return value{}, errors.New("calling a value is not allowed")
	case tokLBracket:
		return value{}, errors.New("subscripts are not allowed")
	}
	return v, nil
}

func (p *parser) list() (value, error) {
	var items []value
	if p.peek().kind == tokRBracket {
		p.next()
		return listValue(items), nil
	}
	for {
		v, err := p.expr()
		if err != nil {
			return value{}, err
		}
		if !v.isNumber() {
			return value{}, errors.New("nested lists are not allowed")
		}
		items = append(items, v)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		if err := p.expect(tokRBracket, `"]"`); err != nil {
			return value{}, err
		}
		return listValue(items), nil
	}
}

func (p *parser) call(name token) (value, error) {
	fn, ok := functions[name.text]
	if !ok {
		return value{}, fmt.Errorf("name %q is not allowed", name.text)
	}
	if p.peek().kind != tokLParen {
		return value{}, fmt.Errorf("function %q must be called", name.text)
	}
	p.next()

	var args []value
	if p.peek().kind == tokRParen {
		p.next()
	} else if err := p.args(&args); err != nil {
		return value{}, err
	}

	v, err := fn(args)
	if err != nil {
		return value{}, fmt.Errorf("%s(): %w", name.text, err)
	}
	return v, nil
}

func (p *parser) args(out *[]value) error {
	for {
		v, err := p.expr()
		if err != nil {
			return err
		}
		*out = append(*out, v)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		return p.expect(tokRParen, `")"`)
	}
}

func numeric(op string, a, b value) error {
	if a.isNumber() && b.isNumber() {
		return nil
	}
	return fmt.Errorf("unsupported operand type for %s: list", op)
}

func parseNumber(text string) (value, error) {
	if i, ok := new(big.Int).SetString(text, 10); ok {
		return checkInt(i)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return value{}, fmt.Errorf("invalid number %q", text)
	}
	return floatValue(f), nil
}
