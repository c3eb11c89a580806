// Package lint runs the stylesheet linter and decides whether the lint chain
// fails.
//
// The lint engine itself is external (stylelint with its JSON formatter).
// This package parses its report, applies the severities of the project's
// sass-lint.yml, prints a readable report and fails on error-severity
// violations only.
package lint

import (
	"errors"
	"fmt"
	"sort"
)

// Severity of a violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Violation is one rule violation reported by the linter.
type Violation struct {
	// File is project-relative and slash-separated.
	File     string
	Line     int
	Column   int
	Rule     string
	Severity Severity
	Message  string
}

// ErrViolations is matched by errors.Is when linting found error-severity
// violations.
var ErrViolations = errors.New("lint violations")

// ViolationsError reports the counts of a failed lint run.
type ViolationsError struct {
	Errors   int
	Warnings int
}

func (e *ViolationsError) Error() string {
	return fmt.Sprintf("%s: %d error(s), %d warning(s)", ErrViolations, e.Errors, e.Warnings)
}

func (e *ViolationsError) Is(target error) bool { return target == ErrViolations }

// Count returns the number of errors and warnings.
func Count(vs []Violation) (errs, warnings int) {
	for _, v := range vs {
		if v.Severity == SeverityError {
			errs++
		} else {
			warnings++
		}
	}
	return errs, warnings
}

// Sort orders violations by file, line, column, then rule.
func Sort(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Rule < b.Rule
	})
}
