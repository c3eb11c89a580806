package lint

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"assetweaver/internal/core"
)

// Rules holds the severities configured in a sass-lint.yml file.
//
// Each rule is 0 (off), 1 (warning) or 2 (error), either as a bare number
// or as the first element of a list that also carries options:
//
//	rules:
//	  no-color-literals: 1
//	  indentation:
//	    - 2
//	    - size: 2
//
// Rule names are sass-lint names. Apply also honours the stylelint name of
// every rule listed in stylelintRules.
type Rules struct {
	severity map[string]int
	options  map[string]map[string]interface{}
	ignore   []*core.Pattern

	// alias holds the stylelint names added for mapped sass-lint rules.
	alias map[string]bool
}

type rulesFile struct {
	Files struct {
		Ignore stringList `yaml:"ignore"`
	} `yaml:"files"`
	Rules map[string]yaml.Node `yaml:"rules"`
}

// stringList accepts a single string or a list of strings.
type stringList []string

func (s *stringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*s = []string{n.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := n.Decode(&out); err != nil {
			return err
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", n.Line)
	}
}

// ParseRules parses sass-lint.yml content. Empty content yields no rules.
func ParseRules(data []byte) (*Rules, error) {
	r := &Rules{
		severity: make(map[string]int),
		options:  make(map[string]map[string]interface{}),
		alias:    make(map[string]bool),
	}
	if len(data) == 0 {
		return r, nil
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lint rules: %w", err)
	}

	for name, node := range f.Rules {
		sev, opts, err := ruleSetting(&node)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		r.severity[name] = sev
		if opts != nil {
			r.options[name] = opts
		}
	}
	for name := range f.Rules {
		if m, ok := stylelintRules[name]; ok {
			if _, explicit := f.Rules[m.name]; !explicit {
				r.severity[m.name] = r.severity[name]
				r.alias[m.name] = true
			}
		}
	}
	for _, raw := range f.Files.Ignore {
		p, err := core.CompilePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("files.ignore %q: %w", raw, err)
		}
		r.ignore = append(r.ignore, p)
	}
	return r, nil
}

// ruleSetting reads a severity and, for the list form, its option mapping.
func ruleSetting(n *yaml.Node) (int, map[string]interface{}, error) {
	var opts map[string]interface{}
	if n.Kind == yaml.SequenceNode {
		if len(n.Content) == 0 {
			return 0, nil, fmt.Errorf("empty rule list")
		}
		if len(n.Content) > 1 {
			if err := n.Content[1].Decode(&opts); err != nil {
				return 0, nil, fmt.Errorf("line %d: rule options must be a mapping", n.Content[1].Line)
			}
		}
		n = n.Content[0]
	}
	if n.Kind != yaml.ScalarNode {
		return 0, nil, fmt.Errorf("line %d: severity must be 0, 1 or 2", n.Line)
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil || v < 0 || v > 2 {
		return 0, nil, fmt.Errorf("line %d: severity must be 0, 1 or 2, got %q", n.Line, n.Value)
	}
	return v, opts, nil
}

// Ignored reports whether a project-relative file is excluded from linting.
func (r *Rules) Ignored(file string) bool {
	if r == nil {
		return false
	}
	for _, p := range r.ignore {
		if p.Match(file) {
			return true
		}
	}
	return false
}

// Apply overrides the severity of every violation whose rule is configured
// and drops violations of rules turned off.
func (r *Rules) Apply(vs []Violation) []Violation {
	if r == nil {
		return vs
	}
	out := make([]Violation, 0, len(vs))
	for _, v := range vs {
		sev, ok := r.severity[v.Rule]
		if !ok {
			out = append(out, v)
			continue
		}
		switch sev {
		case 0:
			continue
		case 1:
			v.Severity = SeverityWarning
		case 2:
			v.Severity = SeverityError
		}
		out = append(out, v)
	}
	return out
}
