package lint

import (
	"context"
	"fmt"
	"io"
	"strings"

	"assetweaver/internal/core"
)

// Unit is the core.Unit of the lint chain. It produces no output files.
//
// The chain's inputs are the stylesheets plus, optionally, the rules file.
// The linter reads configuration the chain cannot see, so the lint chain is
// built with NoCache.
type Unit struct {
	// RulesFile is the project-relative sass-lint.yml path. It is not linted.
	RulesFile string

	Linter Linter

	// LinterID identifies the linter invocation, usually its command line.
	LinterID string

	// Report receives the formatted report. Nil discards it.
	Report io.Writer
}

func (u *Unit) Name() string        { return "lint" }
func (u *Unit) Fingerprint() string {
	return "rules=" + core.CleanSource(u.RulesFile) + ";linter=" + u.LinterID
}

func (u *Unit) Apply(ctx context.Context, in *core.AssetSet) (*core.AssetSet, error) {
	if u.Linter == nil {
		return nil, fmt.Errorf("no linter configured")
	}

	rulesFile := core.CleanSource(u.RulesFile)
	var rulesData []byte
	for _, a := range in.Assets {
		if a.Source == rulesFile {
			rulesData = a.Content
		}
	}
	rules, err := ParseRules(rulesData)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, a := range in.Assets {
		if a.Source == rulesFile || rules.Ignored(a.Source) {
			continue
		}
		files = append(files, a.Source)
	}

	vs, err := u.Linter.Lint(ctx, files, rules)
	if err != nil {
		return nil, err
	}
	vs = rules.Apply(vs)
	Sort(vs)

	if u.Report != nil {
		if unmapped := rules.Unmapped(); len(unmapped) > 0 {
			fmt.Fprintf(u.Report, "%s\n", ruleStyle.Render("not enforced (no stylelint equivalent): "+strings.Join(unmapped, ", ")))
		}
		if err := WriteReport(u.Report, vs); err != nil {
			return nil, fmt.Errorf("writing lint report: %w", err)
		}
	}

	if errs, warnings := Count(vs); errs > 0 {
		return nil, &ViolationsError{Errors: errs, Warnings: warnings}
	}
	return &core.AssetSet{}, nil
}
