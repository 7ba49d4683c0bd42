package sanitize

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule is one declarative code repair.
type Rule struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Pattern     string `yaml:"pattern"`
	Replace     string `yaml:"replace"`

	re *regexp.Regexp
}

// Apply rewrites every match of the rule in code.
func (r *Rule) Apply(code string) string {
	return r.re.ReplaceAllString(code, r.Replace)
}

// Matches reports whether the rule would change code.
func (r *Rule) Matches(code string) bool {
	return r.re.MatchString(code)
}

type ruleFile struct {
	Rules []*Rule `yaml:"rules"`
}

// LoadRules decodes and compiles a YAML rule table.
func LoadRules(r io.Reader) ([]*Rule, error) {
	var f ruleFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	seen := make(map[string]bool, len(f.Rules))
	for _, rule := range f.Rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("rule without a name")
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("rule %q defined twice", rule.Name)
		}
		seen[rule.Name] = true

		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		rule.re = re
	}
	return f.Rules, nil
}

var loadDefaultRules = sync.OnceValues(func() ([]*Rule, error) {
	return LoadRules(bytes.NewReader(defaultRules))
})

// DefaultRules returns the built-in rule table.
func DefaultRules() []*Rule {
	rules, err := loadDefaultRules()
	if err != nil {
		panic(fmt.Sprintf("sanitize: embedded rules are invalid: %v", err))
	}
	return rules
}
