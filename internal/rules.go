package internal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Rule routes matching notifications to mirror topics.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// EmitList accepts either a single topic or a list of topics in YAML.
type EmitList []string

func (e *EmitList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*e = EmitList{value.Value}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := value.Decode(&topics); err != nil {
			return err
		}
		*e = topics
		return nil
	default:
		return fmt.Errorf("emit must be a string or a list of strings")
	}
}

// RuleMatch is a topic selected by a rule, optionally restricted to some drivers.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	emit     EmitList
	drivers  []string
	expr     *govaluate.EvaluableExpression
	jsonPath map[string]string
}

type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger zerolog.Logger
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments")
		}
		switch haystack := args[0].(type) {
		case []interface{}:
			for _, item := range haystack {
				if item == args[1] {
					return true, nil
				}
			}
			return false, nil
		case string:
			needle, _ := args[1].(string)
			return strings.Contains(haystack, needle), nil
		default:
			return false, nil
		}
	},
	"like": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("like expects 2 arguments")
		}
		value, _ := args[0].(string)
		pattern, _ := args[1].(string)
		return likeMatch(value, pattern), nil
	},
	"hasPrefix": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("hasPrefix expects 2 arguments")
		}
		value, _ := args[0].(string)
		prefix, _ := args[1].(string)
		return strings.HasPrefix(value, prefix), nil
	},
}

// NewRuleEngine compiles the configured rules.
func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rewritten, paths := rewriteExpression(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, compiledRule{
			emit:     rule.Emit,
			drivers:  rule.Drivers,
			expr:     expr,
			jsonPath: paths,
		})
	}

	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: cfg.Logger}, nil
}

// Empty reports whether no rules are configured.
func (r *RuleEngine) Empty() bool {
	return r == nil || len(r.rules) == 0
}

// Evaluate returns the topics of every rule matching event.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	return r.EvaluateWithLogger(event, r.logger)
}

// EvaluateWithLogger is Evaluate with a request-scoped logger for evaluation errors.
func (r *RuleEngine) EvaluateWithLogger(event Event, logger zerolog.Logger) []RuleMatch {
	if r.Empty() {
		return nil
	}

	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		params, err := r.parameters(rule, event)
		if err != nil {
			logger.Debug().Err(err).Str("rule", rule.expr.String()).Msg("rule skipped")
			continue
		}
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			logger.Warn().Err(err).Str("rule", rule.expr.String()).Msg("rule eval failed")
			continue
		}
		if ok, _ := result.(bool); ok {
			for _, topic := range rule.emit {
				matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
			}
		}
	}
	return matches
}

func (r *RuleEngine) parameters(rule compiledRule, event Event) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(event.Data)+len(rule.jsonPath))
	for key, value := range event.Data {
		params[key] = value
	}
	for name, path := range rule.jsonPath {
		value, err := jsonpath.Get(path, event.RawObject)
		if err != nil {
			if r.strict {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			value = nil
		}
		params[name] = value
	}
	if !r.strict {
		for _, token := range rule.expr.Tokens() {
			if token.Kind != govaluate.VARIABLE {
				continue
			}
			name, _ := token.Value.(string)
			if _, ok := params[name]; !ok {
				params[name] = nil
			}
		}
	}
	return params, nil
}

var (
	jsonPathToken = regexp.MustCompile(`\$(?:\.[A-Za-z_][A-Za-z0-9_]*|\[\d+\]|\[\*\])+`)
	indexedToken  = regexp.MustCompile(`(^|[^A-Za-z0-9_\[\].$])([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[\d+\])*\[\d+\](?:\.[A-Za-z_][A-Za-z0-9_]*|\[\d+\])*)`)
	dottedToken   = regexp.MustCompile(`(^|[^A-Za-z0-9_\[\].$])([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+)`)
)

// rewriteExpression prepares a rule for govaluate. JSONPath tokens ($.a.b, a[0].b)
// become generated parameters resolved per event, and dotted names (commit.id)
// become bracketed parameters that read flattened keys. Quoted strings are left alone.
func rewriteExpression(expr string) (string, map[string]string) {
	paths := map[string]string{}
	var out strings.Builder
	for _, part := range splitQuoted(expr) {
		if part.quoted {
			out.WriteString(part.text)
			continue
		}
		text := jsonPathToken.ReplaceAllStringFunc(part.text, func(token string) string {
			return jsonPathParam(paths, token)
		})
		text = indexedToken.ReplaceAllStringFunc(text, func(token string) string {
			m := indexedToken.FindStringSubmatch(token)
			return m[1] + jsonPathParam(paths, "$."+m[2])
		})
		text = dottedToken.ReplaceAllString(text, "$1[$2]")
		out.WriteString(text)
	}
	return out.String(), paths
}

func jsonPathParam(paths map[string]string, path string) string {
	for name, existing := range paths {
		if existing == path {
			return name
		}
	}
	name := fmt.Sprintf("jsonpath%d", len(paths))
	paths[name] = path
	return name
}

type exprPart struct {
	text   string
	quoted bool
}

func splitQuoted(expr string) []exprPart {
	var parts []exprPart
	start := 0
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote == 0 && (c == '"' || c == '\''):
			if i > start {
				parts = append(parts, exprPart{text: expr[start:i]})
			}
			quote = c
			start = i
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			parts = append(parts, exprPart{text: expr[start : i+1], quoted: true})
			quote = 0
			start = i + 1
		}
	}
	if start < len(expr) {
		parts = append(parts, exprPart{text: expr[start:], quoted: quote != 0})
	}
	return parts
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(value, pattern string) bool {
	if pattern == "" {
		return value == ""
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(value); i++ {
			if likeMatch(value[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '_':
		return value != "" && likeMatch(value[1:], pattern[1:])
	default:
		return value != "" && value[0] == pattern[0] && likeMatch(value[1:], pattern[1:])
	}
}
