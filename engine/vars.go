package engine

import (
	"fmt"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/expr-lang/expr"
)

// Vars is the mutable per-execution variable namespace. It backs `${...}`
// substitution, condition matching, and inter-step data passing. A workflow
// execution owns exactly one Vars instance and mutates it in place as steps
// complete; there is no concurrent access within an execution.
type Vars struct {
	values map[string]any
}

// NewVars seeds a namespace. Later maps take precedence over earlier ones.
func NewVars(seeds ...map[string]any) *Vars {
	values := make(map[string]any)
	for _, seed := range seeds {
		for k, v := range seed {
			values[k] = v
		}
	}
	return &Vars{values: values}
}

// SetValue stores a value under name. Collisions silently overwrite.
func (v *Vars) SetValue(name string, value any) {
	v.values[name] = value
}

// GetValue reads a value by name. Dotted names traverse into nested maps;
// missing names return nil.
func (v *Vars) GetValue(name string) any {
	value, _ := v.lookup(name)
	return value
}

// lookup resolves a possibly-dotted path against the namespace.
func (v *Vars) lookup(path string) (any, bool) {
	if value, ok := v.values[path]; ok {
		return value, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}
	c := gabs.Wrap(v.values).Path(path)
	if c == nil {
		return nil, false
	}
	return c.Data(), true
}

// Resolve returns a snapshot of the namespace with every `${...}` expression
// evaluated. Non-string values pass through; string values that are a single
// whole-string expression are replaced structurally with the referenced value.
func (v *Vars) Resolve() map[string]any {
	resolved := make(map[string]any, len(v.values))
	for k, value := range v.values {
		resolved[k] = v.resolveValue(value)
	}
	return resolved
}

// ResolveParams deep-resolves `${...}` expressions inside an arbitrary object,
// leaving non-expression values untouched. Used for literal step params and
// child-workflow injected vars.
func (v *Vars) ResolveParams(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	resolved := make(map[string]any, len(obj))
	for k, value := range obj {
		resolved[k] = v.resolveValue(value)
	}
	return resolved
}

// CreateImportVars resolves each name in an activity's import list to its
// current value. This is how upstream step outputs become downstream inputs
// without re-stating them in params.
func (v *Vars) CreateImportVars(names []string) map[string]any {
	imports := make(map[string]any, len(names))
	for _, name := range names {
		value, _ := v.lookup(name)
		imports[name] = v.resolveValue(value)
	}
	return imports
}

// Match evaluates a boolean condition expression against the resolved
// namespace. Undefined variables evaluate to nil rather than failing the
// compile, matching how DSL authors probe optional upstream outputs.
func (v *Vars) Match(condition string) (bool, error) {
	env := v.Resolve()
	program, err := expr.Compile(condition,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return false, fmt.Errorf("error compiling condition %q: %w", condition, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("error evaluating condition %q: %w", condition, err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q evaluated to %T, expected boolean", condition, result)
	}
	return b, nil
}

// resolveValue recursively resolves expressions in strings, maps, and slices.
func (v *Vars) resolveValue(value any) any {
	switch val := value.(type) {
	case string:
		return v.resolveString(val)
	case map[string]any:
		resolved := make(map[string]any, len(val))
		for k, item := range val {
			resolved[k] = v.resolveValue(item)
		}
		return resolved
	case []any:
		resolved := make([]any, len(val))
		for i, item := range val {
			resolved[i] = v.resolveValue(item)
		}
		return resolved
	default:
		return value
	}
}

// resolveString substitutes `${...}` spans. A string that is exactly one span
// resolves to the referenced value itself (structural insertion); spans
// embedded in a larger string are stringified in place. Missing references
// degrade to nil (whole-string) or an empty substring — never an error.
func (v *Vars) resolveString(s string) any {
	spans := findExprSpans(s)
	if len(spans) == 0 {
		return s
	}

	// Whole-string expression: return the raw value.
	if len(spans) == 1 && spans[0].start == 0 && spans[0].end == len(s) {
		value, _ := v.lookup(spans[0].path)
		return value
	}

	var sb strings.Builder
	last := 0
	for _, span := range spans {
		sb.WriteString(s[last:span.start])
		if value, ok := v.lookup(span.path); ok && value != nil {
			sb.WriteString(stringify(value))
		}
		last = span.end
	}
	sb.WriteString(s[last:])
	return sb.String()
}

// exprSpan marks one `${path}` occurrence inside a string.
type exprSpan struct {
	start int // index of '$'
	end   int // index just past '}'
	path  string
}

// findExprSpans tokenizes `${...}` occurrences. Unterminated spans are left
// as literal text.
func findExprSpans(s string) []exprSpan {
	var spans []exprSpan
	for i := 0; i+1 < len(s); {
		if s[i] != '$' || s[i+1] != '{' {
			i++
			continue
		}
		close := strings.IndexByte(s[i+2:], '}')
		if close < 0 {
			break
		}
		end := i + 2 + close + 1
		spans = append(spans, exprSpan{
			start: i,
			end:   end,
			path:  strings.TrimSpace(s[i+2 : end-1]),
		})
		i = end
	}
	return spans
}

// stringify renders a value for embedding inside a larger string.
func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
