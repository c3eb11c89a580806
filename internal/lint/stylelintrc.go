package lint

import (
	"encoding/json"
	"sort"
)

// customSyntax lets stylelint parse SCSS. The postcss-scss package must be
// installed next to stylelint.
const customSyntax = "postcss-scss"

// stylelintRule is the stylelint counterpart of a sass-lint rule. primary
// builds the rule's primary option from the sass-lint options.
type stylelintRule struct {
	name    string
	primary func(opts map[string]interface{}) interface{}
}

func constant(v interface{}) func(map[string]interface{}) interface{} {
	return func(map[string]interface{}) interface{} { return v }
}

func option(key string, def interface{}) func(map[string]interface{}) interface{} {
	return func(opts map[string]interface{}) interface{} {
		if v, ok := opts[key]; ok {
			return v
		}
		return def
	}
}

// stylelintRules maps sass-lint rule names to stylelint rules. sass-lint
// rules without a core stylelint equivalent are left out of the generated
// configuration.
var stylelintRules = map[string]stylelintRule{
	"empty-line-between-blocks": {"rule-empty-line-before", constant("always-multi-line")},
	"hex-length":                {"color-hex-length", option("style", "short")},
	"nesting-depth":             {"max-nesting-depth", option("max-depth", 2)},
	"no-color-keywords":         {"color-named", constant("never")},
	"no-duplicate-properties":   {"declaration-block-no-duplicate-properties", constant(true)},
	"no-empty-rulesets":         {"block-no-empty", constant(true)},
	"no-extends":                {"at-rule-disallowed-list", constant([]string{"extend"})},
	"no-ids":                    {"selector-max-id", constant(0)},
	"no-important":              {"declaration-no-important", constant(true)},
	"no-invalid-hex":            {"color-no-invalid-hex", constant(true)},
	"no-mergeable-selectors":    {"no-duplicate-selectors", constant(true)},
	"no-misspelled-properties":  {"property-no-unknown", constant(true)},
	"no-qualifying-elements":    {"selector-no-qualifying-type", constant(true)},
	"no-universal-selectors":    {"selector-max-universal", constant(0)},
	"no-vendor-prefixes":        {"property-no-vendor-prefix", constant(true)},
	"shorthand-values":          {"shorthand-property-no-redundant-values", constant(true)},
	"zero-unit":                 {"length-zero-no-unit", constant(true)},
}

type stylelintConfig struct {
	CustomSyntax string                 `json:"customSyntax"`
	Rules        map[string]interface{} `json:"rules"`
}

// StylelintConfig renders the rules as a stylelint JSON configuration.
// Severity 0 turns the rule off; 1 and 2 set the stylelint severity to
// warning and error. A rule written under its stylelint name wins over the
// sass-lint rule it translates from.
func (r *Rules) StylelintConfig() ([]byte, error) {
	cfg := stylelintConfig{CustomSyntax: customSyntax, Rules: map[string]interface{}{}}
	if r != nil {
		var direct []string
		for _, name := range r.names() {
			m, ok := stylelintRules[name]
			if !ok {
				direct = append(direct, name)
				continue
			}
			cfg.Rules[m.name] = r.stylelintSetting(m, name)
		}
		for _, name := range direct {
			if sassName, ok := sassLintName(name); ok {
				cfg.Rules[name] = r.stylelintSetting(stylelintRules[sassName], name)
			}
		}
	}
	return json.MarshalIndent(cfg, "", "  ")
}

func (r *Rules) stylelintSetting(m stylelintRule, name string) interface{} {
	switch r.severity[name] {
	case 1:
		return []interface{}{m.primary(r.options[name]), map[string]string{"severity": string(SeverityWarning)}}
	case 2:
		return []interface{}{m.primary(r.options[name]), map[string]string{"severity": string(SeverityError)}}
	default:
		return nil
	}
}

// names returns the rule names written in the file, sorted.
func (r *Rules) names() []string {
	out := make([]string, 0, len(r.severity))
	for name := range r.severity {
		if !r.alias[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Unmapped lists the configured rules that have no stylelint equivalent,
// sorted. They are left out of StylelintConfig.
func (r *Rules) Unmapped() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, name := range r.names() {
		if _, ok := stylelintRules[name]; ok {
			continue
		}
		if _, ok := sassLintName(name); ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

func sassLintName(stylelintName string) (string, bool) {
	for sassName, m := range stylelintRules {
		if m.name == stylelintName {
			return sassName, true
		}
	}
	return "", false
}
