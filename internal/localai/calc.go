package localai

import (
	"errors"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SourceCalculator labels arithmetic answers.
const SourceCalculator = "Calculator"

const maxExpressionRunes = 200

var (
	// mathFillerRe matches the words allowed around an expression.
	mathFillerRe = regexp.MustCompile(`(?i)\b(what'?s|what|is|calculate|compute|evaluate|solve|equals?|please|the|result|of|how|much|answer|to)\b|[?=!,]`)
	expressionRe = regexp.MustCompile(`^[0-9+\-*/%(). ]+$`)
	spacesRe     = regexp.MustCompile(`\s+`)

	errNotArithmetic = errors.New("not an arithmetic expression")
	errDivideByZero  = errors.New("division by zero")
)

// Calculate evaluates the arithmetic expression in message ("what is 12 * 7")
// with exact rational arithmetic. Only numbers, + - * / %, and parentheses are
// accepted, and nothing but a few filler words may surround them. ok is false
// for anything else, including division by zero.
func Calculate(message string) (expr, result string, ok bool) {
	if !arithmeticRe.MatchString(message) {
		return "", "", false
	}
	rest := strings.TrimSpace(spacesRe.ReplaceAllString(mathFillerRe.ReplaceAllString(message, " "), " "))
	if rest == "" || utf8.RuneCountInString(rest) > maxExpressionRunes || !expressionRe.MatchString(rest) {
		return "", "", false
	}
	node, err := parser.ParseExpr(rest)
	if err != nil {
		return "", "", false
	}
	v, err := eval(node)
	if err != nil {
		return "", "", false
	}
	return rest, format(v), true
}

func eval(node ast.Expr) (constant.Value, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		switch n.Kind {
		case token.INT:
			// No octal: "012" is twelve.
			lit := strings.TrimLeft(n.Value, "0")
			if lit == "" {
				lit = "0"
			}
			return constant.MakeFromLiteral(lit, token.INT, 0), nil
		case token.FLOAT:
			return constant.MakeFromLiteral(n.Value, token.FLOAT, 0), nil
		}
	case *ast.ParenExpr:
		return eval(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.ADD && n.Op != token.SUB {
			break
		}
		x, err := eval(n.X)
		if err != nil {
			return nil, err
		}
		return constant.UnaryOp(n.Op, x, 0), nil
	case *ast.BinaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return nil, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD, token.SUB, token.MUL:
			return constant.BinaryOp(x, n.Op, y), nil
		case token.QUO:
			if constant.Sign(y) == 0 {
				return nil, errDivideByZero
			}
			return constant.BinaryOp(x, token.QUO, y), nil
		case token.REM:
			x, y = constant.ToInt(x), constant.ToInt(y)
			if x.Kind() != constant.Int || y.Kind() != constant.Int {
				return nil, errNotArithmetic
			}
			if constant.Sign(y) == 0 {
				return nil, errDivideByZero
			}
			return constant.BinaryOp(x, token.REM, y), nil
		}
	}
	return nil, errNotArithmetic
}

func format(v constant.Value) string {
	if i := constant.ToInt(v); i.Kind() == constant.Int {
		return i.ExactString()
	}
	f, _ := constant.Float64Val(v)
	return strconv.FormatFloat(f, 'f', -1, 64)
}
