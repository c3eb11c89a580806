package core

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// InputResolver expands source patterns to a deterministic AssetSet.
//
// Glob expansion is strictly sorted and file content is read, so the result
// does not depend on filesystem enumeration order or file metadata.
type InputResolver struct {
	// BaseDir is the project root patterns are resolved against.
	BaseDir string
}

// NewInputResolver creates a new InputResolver with the given base directory.
func NewInputResolver(baseDir string) *InputResolver {
	return &InputResolver{BaseDir: baseDir}
}

// Resolve expands all patterns and returns the matched files.
//
// A pattern whose base directory does not exist matches nothing; that is not
// an error. Directories and hidden entries are never returned.
func (r *InputResolver) Resolve(patterns []string) (*AssetSet, error) {
	bySource := make(map[string]Asset)

	for _, pattern := range patterns {
		matched, err := r.expandPattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding pattern %q: %w", pattern, err)
		}
		for _, a := range matched {
			if _, seen := bySource[a.Source]; seen {
				continue
			}
			bySource[a.Source] = a
		}
	}

	set := &AssetSet{Assets: make([]Asset, 0, len(bySource))}
	for _, a := range bySource {
		set.Assets = append(set.Assets, a)
	}
	set.Sort()
	return set, nil
}

// Pattern is a compiled source glob together with its base directory.
type Pattern struct {
	Raw   string
	Base  string
	globs []glob.Glob
	deep  bool
	segs  int
}

// CompilePattern normalizes and compiles a source pattern.
func CompilePattern(raw string) (*Pattern, error) {
	norm := normalizePattern(raw)
	if norm == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if path.IsAbs(norm) || norm == ".." || strings.HasPrefix(norm, "../") {
		return nil, fmt.Errorf("pattern must stay inside the project root")
	}
	variants := globstarVariants(norm)
	globs := make([]glob.Glob, 0, len(variants))
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern: %w", err)
		}
		globs = append(globs, g)
	}
	return &Pattern{
		Raw:   raw,
		Base:  GlobBase(norm),
		globs: globs,
		deep:  strings.Contains(norm, "**"),
		segs:  strings.Count(norm, "/") + 1,
	}, nil
}

// Match reports whether a project-relative, slash-separated path matches.
func (p *Pattern) Match(rel string) bool {
	rel = strings.TrimPrefix(rel, "./")
	for _, g := range p.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// globstarVariants lets "**/" match zero directories, so "src/**/*.scss"
// also matches "src/a.scss".
func globstarVariants(pattern string) []string {
	out := []string{pattern}
	seen := map[string]struct{}{pattern: {}}
	for i := 0; i < len(out); i++ {
		cur := out[i]
		for _, cand := range collapseGlobstar(cur) {
			if _, ok := seen[cand]; ok {
				continue
			}
			seen[cand] = struct{}{}
			out = append(out, cand)
		}
	}
	return out
}

func collapseGlobstar(pattern string) []string {
	var out []string
	if strings.HasPrefix(pattern, "**/") {
		out = append(out, strings.TrimPrefix(pattern, "**/"))
	}
	for idx := 0; ; {
		j := strings.Index(pattern[idx:], "/**/")
		if j < 0 {
			break
		}
		at := idx + j
		out = append(out, pattern[:at]+"/"+pattern[at+len("/**/"):])
		idx = at + 1
	}
	return out
}

// GlobBase returns the leading directory of a pattern that contains no glob
// syntax. For a literal file path it is the file's directory.
func GlobBase(pattern string) string {
	norm := normalizePattern(pattern)
	if !containsGlobChar(norm) {
		return path.Dir(norm)
	}
	segments := strings.Split(norm, "/")
	base := make([]string, 0, len(segments))
	for _, seg := range segments[:len(segments)-1] {
		if containsGlobChar(seg) {
			break
		}
		base = append(base, seg)
	}
	if len(base) == 0 {
		return "."
	}
	return strings.Join(base, "/")
}

func (r *InputResolver) expandPattern(raw string) ([]Asset, error) {
	p, err := CompilePattern(raw)
	if err != nil {
		return nil, err
	}
	root := filepath.Join(r.BaseDir, filepath.FromSlash(p.Base))

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %q: %w", p.Base, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	var out []Asset
	err = filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(r.BaseDir, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if full == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			// Without "**" a match can never be deeper than the pattern.
			if !p.deep && strings.Count(rel, "/")+1 >= p.segs {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}
		if !p.Match(rel) {
			return nil
		}

		content, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("reading input %q: %w", rel, err)
		}
		out = append(out, Asset{
			Path:    relativeToBase(p.Base, rel),
			Source:  rel,
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func relativeToBase(base, rel string) string {
	if base == "." || base == "" {
		return rel
	}
	return strings.TrimPrefix(rel, base+"/")
}

func normalizePattern(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return p
}

// containsGlobChar returns true if the pattern contains glob special characters.
func containsGlobChar(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[]{}")
}
