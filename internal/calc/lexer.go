package calc

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

// lex splits an expression into tokens. Anything outside the grammar
// (quotes, dots outside numbers, brackets used as subscripts are caught by
// the parser) is rejected here.
func lex(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i = scanNumber(runes, i)
			toks = append(toks, token{kind: tokNumber, text: string(runes[start:i]), pos: start})

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[start:i]), pos: start})

		case r == '*' || r == '/':
			// ** and // are single operators.
			if i+1 < len(runes) && runes[i+1] == r {
				toks = append(toks, token{kind: tokOp, text: string([]rune{r, r}), pos: i})
				i += 2
				continue
			}
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++

		case strings.ContainsRune("+-%", r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++

		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '[':
			toks = append(toks, token{kind: tokLBracket, text: "[", pos: i})
			i++
		case r == ']':
			toks = append(toks, token{kind: tokRBracket, text: "]", pos: i})
			i++
		case r == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++

		case r == '.':
			return nil, fmt.Errorf("attribute access is not allowed (position %d)", i)
		case r == '\'' || r == '"':
			return nil, fmt.Errorf("string literals are not allowed (position %d)", i)
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", r, i)
		}
	}

	toks = append(toks, token{kind: tokEOF, pos: len(runes)})
	return toks, nil
}

// scanNumber consumes digits, an optional fraction and an optional exponent.
func scanNumber(runes []rune, i int) int {
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && unicode.IsDigit(runes[i]) {
			i++
		}
	}
	if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
		j := i + 1
		if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
			j++
		}
		if j < len(runes) && unicode.IsDigit(runes[j]) {
			i = j
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
		}
	}
	return i
}
