package lint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"assetweaver/internal/core"
)

// Linter lints project-relative files with the rules of the project's
// sass-lint.yml. Rules may be nil.
type Linter interface {
	Lint(ctx context.Context, files []string, rules *Rules) ([]Violation, error)
}

// Stylelint runs stylelint with the JSON formatter through core.Executor.
//
// Unless Command already names a --config, the rules are rendered with
// Rules.StylelintConfig into a temporary file passed as --config, resolved
// against the working directory.
//
// Stylelint exits non-zero when it finds problems, so the exit code is not
// used to detect failure; a report that does not parse is.
type Stylelint struct {
	// Command is the linter invocation; the files are appended quoted.
	Command  string
	Executor *core.Executor
	Env      map[string]string
}

type stylelintResult struct {
	Source   string `json:"source"`
	Warnings []struct {
		Line     int    `json:"line"`
		Column   int    `json:"column"`
		Rule     string `json:"rule"`
		Severity string `json:"severity"`
		Text     string `json:"text"`
	} `json:"warnings"`
	ParseErrors []struct {
		Line   int    `json:"line"`
		Column int    `json:"column"`
		Text   string `json:"text"`
	} `json:"parseErrors"`
}

func (s *Stylelint) Lint(ctx context.Context, files []string, rules *Rules) ([]Violation, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var args []string
	if !strings.Contains(s.Command, "--config") {
		dir, err := os.MkdirTemp("", "assetweaver-stylelint-")
		if err != nil {
			return nil, fmt.Errorf("creating linter config dir: %w", err)
		}
		defer os.RemoveAll(dir)

		data, err := rules.StylelintConfig()
		if err != nil {
			return nil, fmt.Errorf("rendering linter config: %w", err)
		}
		cfgPath := filepath.Join(dir, "stylelintrc.json")
		if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing linter config: %w", err)
		}
		args = append(args, "--config", shellQuote(cfgPath))
		if s.Executor.WorkingDir != "" {
			args = append(args, "--config-basedir", shellQuote(s.Executor.WorkingDir))
		}
	}
	for _, f := range files {
		args = append(args, shellQuote(f))
	}

	res, err := s.Executor.Execute(ctx, core.Command{
		Run: s.Command + " " + strings.Join(args, " "),
		Env: s.Env,
	})
	if err != nil {
		return nil, err
	}

	// Recent stylelint versions print the report on stderr.
	report := bytes.TrimSpace(res.Stdout)
	if len(report) == 0 {
		report = bytes.TrimSpace(res.Stderr)
	}
	vs, err := ParseStylelintJSON(report, s.Executor.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("linter exited with code %d: %w", res.ExitCode, err)
	}
	return vs, nil
}

var ruleSuffix = regexp.MustCompile(`\s*\([a-z0-9/@-]+\)$`)

// ParseStylelintJSON converts a stylelint JSON report. Absolute source paths
// are made relative to root.
func ParseStylelintJSON(data []byte, root string) ([]Violation, error) {
	var results []stylelintResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parsing linter report: %w", err)
	}

	var out []Violation
	for _, r := range results {
		file := relativeTo(root, r.Source)
		for _, w := range r.Warnings {
			sev := SeverityWarning
			if w.Severity == string(SeverityError) {
				sev = SeverityError
			}
			out = append(out, Violation{
				File:     file,
				Line:     w.Line,
				Column:   w.Column,
				Rule:     w.Rule,
				Severity: sev,
				Message:  ruleSuffix.ReplaceAllString(w.Text, ""),
			})
		}
		for _, p := range r.ParseErrors {
			out = append(out, Violation{
				File:     file,
				Line:     p.Line,
				Column:   p.Column,
				Rule:     "parse-error",
				Severity: SeverityError,
				Message:  p.Text,
			})
		}
	}
	Sort(out)
	return out, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func relativeTo(root, p string) string {
	if root != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(p)
}
