package stagedeploy

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// InMemoryParamTarget is a DeploymentTarget test double that records every
// change applied to it, keyed by parameter name (last value wins).
type InMemoryParamTarget struct {
	mu     sync.Mutex
	name   string
	values map[string]float64
	fail   string // when non-empty, Apply always fails with this reason
}

// NewInMemoryParamTarget constructs a named, empty InMemoryParamTarget.
func NewInMemoryParamTarget(name string) *InMemoryParamTarget {
	return &InMemoryParamTarget{name: name, values: make(map[string]float64)}
}

// FailWith makes every subsequent Apply call fail with reason.
func (t *InMemoryParamTarget) FailWith(reason string) { t.fail = reason }

func (t *InMemoryParamTarget) Name() string { return t.name }

func (t *InMemoryParamTarget) Apply(changes []ParamChange) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fail != "" {
		return DeploymentError{Target: t.name, Reason: t.fail}
	}
	for _, c := range changes {
		t.values[c.Name] = c.New
	}
	return nil
}

// Value returns the last applied value for name.
func (t *InMemoryParamTarget) Value(name string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[name]
	return v, ok
}

// --- Text-transform target ---------------------------------------------------

// transformRuleType is the closed set of text-transform operations. Go has
// no safe dynamic code loading in the small, so this interprets a fixed
// descriptor shape instead of executing arbitrary logic.
type transformRuleType string

const (
	ruleRegex   transformRuleType = "regex"
	ruleReplace transformRuleType = "replace"
	ruleFunc    transformRuleType = "function"
)

// knownFunc is the closed set of named builtin functions the "function" rule
// type may reference.
type knownFunc string

const (
	funcUppercase knownFunc = "uppercase"
	funcLowercase knownFunc = "lowercase"
	funcTrim      knownFunc = "trim"
)

// TransformRule is one descriptor in a text-transform catalog, loaded from
// TOML rather than the source system's JSON for consistency with this
// repository's configuration format.
type TransformRule struct {
	RuleType    transformRuleType `toml:"rule_type"`
	Pattern     string            `toml:"pattern"`
	Replacement string            `toml:"replacement"`
	Function    knownFunc         `toml:"function"`
	Flags       []string          `toml:"flags"`
}

// transformCatalog is the on-disk shape of a rule file.
type transformCatalog struct {
	Rule []TransformRule `toml:"rule"`
}

// TextTransformTarget applies a fixed catalog of text-transform rules to an
// in-memory document on every Apply call (ParamChange values are ignored —
// this target exists to exercise the rule interpreter as a DeploymentTarget,
// not to consume parameter values).
type TextTransformTarget struct {
	mu      sync.Mutex
	name    string
	rules   []TransformRule
	Content string
}

// LoadTextTransformTarget reads a TOML rule catalog from path and returns a
// target seeded with the given initial content.
func LoadTextTransformTarget(name, path, initialContent string) (*TextTransformTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule catalog: %w", err)
	}
	var cat transformCatalog
	if err := toml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing rule catalog: %w", err)
	}
	return &TextTransformTarget{name: name, rules: cat.Rule, Content: initialContent}, nil
}

// NewTextTransformTarget constructs a target from in-process rules, useful
// for tests that don't want to round-trip through a TOML file.
func NewTextTransformTarget(name string, rules []TransformRule, initialContent string) *TextTransformTarget {
	return &TextTransformTarget{name: name, rules: rules, Content: initialContent}
}

func (t *TextTransformTarget) Name() string { return t.name }

// Apply runs every rule in the catalog, in order, over Content.
func (t *TextTransformTarget) Apply([]ParamChange) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.Content
	for _, r := range t.rules {
		next, err := applyRule(r, out)
		if err != nil {
			return DeploymentError{Target: t.name, Reason: err.Error()}
		}
		out = next
	}
	t.Content = out
	return nil
}

func applyRule(r TransformRule, s string) (string, error) {
	switch r.RuleType {
	case ruleRegex:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return "", fmt.Errorf("invalid pattern %q: %w", r.Pattern, err)
		}
		return re.ReplaceAllString(s, r.Replacement), nil
	case ruleReplace:
		return strings.ReplaceAll(s, r.Pattern, r.Replacement), nil
	case ruleFunc:
		return applyFunc(r.Function, s)
	default:
		return "", fmt.Errorf("unknown rule_type %q", r.RuleType)
	}
}

func applyFunc(f knownFunc, s string) (string, error) {
	switch f {
	case funcUppercase:
		return strings.ToUpper(s), nil
	case funcLowercase:
		return strings.ToLower(s), nil
	case funcTrim:
		return strings.TrimSpace(s), nil
	default:
		return "", fmt.Errorf("unknown function %q", f)
	}
}
