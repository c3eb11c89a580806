package transform

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"

	"assetweaver/internal/core"
)

// Transpiler compiles one stylesheet. *godartsass.Transpiler implements it.
type Transpiler interface {
	Execute(args godartsass.Args) (godartsass.Result, error)
}

// DartSass starts the embedded Dart Sass process on first use and keeps it
// for later compiles, so watch rebuilds do not pay the start-up cost again.
type DartSass struct {
	// Binary is the dart-sass executable. Empty looks up "sass" on PATH.
	Binary string

	once sync.Once
	t    *godartsass.Transpiler
	err  error
}

// NewDartSass returns a lazily started Dart Sass transpiler.
func NewDartSass(binary string) *DartSass {
	return &DartSass{Binary: binary}
}

func (d *DartSass) Execute(args godartsass.Args) (godartsass.Result, error) {
	d.once.Do(func() {
		d.t, d.err = godartsass.Start(godartsass.Options{DartSassEmbeddedFilename: d.Binary})
	})
	if d.err != nil {
		return godartsass.Result{}, fmt.Errorf("starting dart-sass: %w", d.err)
	}
	return d.t.Execute(args)
}

// Close stops the Dart Sass process if it was started.
func (d *DartSass) Close() error {
	if d == nil || d.t == nil {
		return nil
	}
	return d.t.Close()
}

// Sass compiles the entry stylesheet to CSS.
//
// The chain may carry the entry's partials as extra inputs so that editing
// a partial changes the chain hash; only the entry is compiled and only its
// CSS leaves the unit.
type Sass struct {
	// Entry is the project-relative path of the stylesheet to compile.
	Entry string

	// Root is the absolute project root, used to give the compiler file URLs
	// for import resolution.
	Root string

	// IncludePaths are project-relative load paths. The entry's directory
	// is always searched first.
	IncludePaths []string

	// Style is the output style; empty means expanded.
	Style godartsass.OutputStyle

	Transpiler Transpiler
}

func (s *Sass) Name() string { return "sass" }

func (s *Sass) Fingerprint() string {
	return fmt.Sprintf("entry=%s;include=%s;style=%s",
		core.CleanSource(s.Entry), strings.Join(s.IncludePaths, ","), s.outputStyle())
}

func (s *Sass) Apply(_ context.Context, in *core.AssetSet) (*core.AssetSet, error) {
	if s.Transpiler == nil {
		return nil, fmt.Errorf("no sass transpiler configured")
	}

	entryPath := core.CleanSource(s.Entry)
	var entry *core.Asset
	for i := range in.Assets {
		if in.Assets[i].Source == entryPath {
			entry = &in.Assets[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrMissingInput, s.Entry)
	}

	abs := filepath.Join(s.Root, filepath.FromSlash(entryPath))
	includes := []string{filepath.Dir(abs)}
	for _, p := range s.IncludePaths {
		includes = append(includes, filepath.Join(s.Root, filepath.FromSlash(p)))
	}

	res, err := s.Transpiler.Execute(godartsass.Args{
		Source:       string(entry.Content),
		URL:          fileURL(abs),
		IncludePaths: includes,
		OutputStyle:  s.outputStyle(),
		SourceSyntax: sourceSyntax(s.Entry),
	})
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", s.Entry, err)
	}

	return core.NewAssetSet(core.Asset{
		Path:    replaceExt(entry.Path, ".css"),
		Content: []byte(res.CSS),
	}), nil
}

func (s *Sass) outputStyle() godartsass.OutputStyle {
	if s.Style == "" {
		return godartsass.OutputStyleExpanded
	}
	return s.Style
}

func sourceSyntax(p string) godartsass.SourceSyntax {
	switch strings.ToLower(path.Ext(p)) {
	case ".sass":
		return godartsass.SourceSyntaxSASS
	case ".css":
		return godartsass.SourceSyntaxCSS
	default:
		return godartsass.SourceSyntaxSCSS
	}
}

func fileURL(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func replaceExt(p, ext string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ext
}
