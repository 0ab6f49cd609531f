// Package expression evaluates context and label expressions such as
// "prod and !eu", "(dev or test), qa" against a set of names.
//
// Names are case-insensitive. "," is an alias for "or"; "!" and "not" negate.
package expression

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env is the evaluation environment: the set of active names
type Env struct {
	names map[string]bool
}

// Has reports whether name is active
func (e Env) Has(name string) bool { return e.names[name] }

// NewEnv builds an environment from names
func NewEnv(names []string) Env {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = true
		}
	}
	return Env{names: set}
}

// Expression is a compiled expression
type Expression struct {
	source  string
	program *vm.Program
}

func (e *Expression) String() string { return e.source }

// Empty reports whether the expression places no restriction
func (e *Expression) Empty() bool { return e.program == nil }

// Compile parses source. An empty source compiles to an expression that
// matches everything.
func Compile(source string) (*Expression, error) {
	if strings.TrimSpace(source) == "" {
		return &Expression{source: source}, nil
	}
	translated, err := translate(source)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	program, err := expr.Compile(translated, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	return &Expression{source: source, program: program}, nil
}

// Eval evaluates the expression in env
func (e *Expression) Eval(env Env) (bool, error) {
	if e.program == nil {
		return true, nil
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", e.source, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean", e.source)
	}
	return matched, nil
}

// Matches evaluates e against names
func (e *Expression) Matches(names []string) (bool, error) {
	return e.Eval(NewEnv(names))
}

// Cache memoizes compiled expressions. The zero value is ready to use; a
// nil *Cache compiles on every call.
type Cache struct {
	mu       sync.Mutex
	compiled map[string]*Expression
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Compile returns the compiled form of source, compiling it once
func (c *Cache) Compile(source string) (*Expression, error) {
	if c == nil {
		return Compile(source)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.compiled[source]; ok {
		return e, nil
	}
	e, err := Compile(source)
	if err != nil {
		return nil, err
	}
	if c.compiled == nil {
		c.compiled = make(map[string]*Expression)
	}
	c.compiled[source] = e
	return e, nil
}

// Len reports how many expressions are cached
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.compiled)
}

// Match compiles source through the cache and evaluates it against names
func (c *Cache) Match(source string, names []string) (bool, error) {
	e, err := c.Compile(source)
	if err != nil {
		return false, err
	}
	return e.Matches(names)
}

// Match compiles and evaluates source against names without caching
func Match(source string, names []string) (bool, error) {
	return (*Cache)(nil).Match(source, names)
}

// translate rewrites the expression into expr-lang syntax: every name
// becomes Has("name")
func translate(source string) (string, error) {
	var out strings.Builder
	runes := []rune(source)
	depth, operands := 0, 0
	expectOperand := true

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			if !expectOperand {
				return "", fmt.Errorf("unexpected '(' at %d", i)
			}
			depth++
			out.WriteString("(")
			i++
		case r == ')':
			if expectOperand || depth == 0 {
				return "", fmt.Errorf("unexpected ')' at %d", i)
			}
			depth--
			out.WriteString(")")
			i++
		case r == '!':
			if !expectOperand {
				return "", fmt.Errorf("unexpected '!' at %d", i)
			}
			out.WriteString("!")
			i++
		case r == ',':
			if expectOperand {
				return "", fmt.Errorf("unexpected ',' at %d", i)
			}
			out.WriteString(" || ")
			expectOperand = true
			i++
		case isNameRune(r):
			start := i
			for i < len(runes) && isNameRune(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			switch strings.ToLower(word) {
			case "and", "or":
				if expectOperand {
					return "", fmt.Errorf("unexpected %q at %d", word, start)
				}
				if strings.EqualFold(word, "and") {
					out.WriteString(" && ")
				} else {
					out.WriteString(" || ")
				}
				expectOperand = true
			case "not":
				if !expectOperand {
					return "", fmt.Errorf("unexpected %q at %d", word, start)
				}
				out.WriteString("!")
			default:
				if !expectOperand {
					return "", fmt.Errorf("missing operator before %q", word)
				}
				out.WriteString("Has(")
				out.WriteString(strconv.Quote(strings.ToLower(word)))
				out.WriteString(")")
				operands++
				expectOperand = false
			}
		default:
			return "", fmt.Errorf("unexpected character %q at %d", r, i)
		}
	}
	if depth != 0 {
		return "", fmt.Errorf("unbalanced parentheses")
	}
	if expectOperand || operands == 0 {
		return "", fmt.Errorf("expression ends without a name")
	}
	return out.String(), nil
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == '$' || r == '@'
}
