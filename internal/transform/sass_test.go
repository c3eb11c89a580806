package transform

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bep/godartsass/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetweaver/internal/core"
)

type fakeTranspiler struct {
	got godartsass.Args
	css string
	err error
}

func (f *fakeTranspiler) Execute(args godartsass.Args) (godartsass.Result, error) {
	f.got = args
	if f.err != nil {
		return godartsass.Result{}, f.err
	}
	return godartsass.Result{CSS: f.css}, nil
}

func styleInputs() *core.AssetSet {
	return core.NewAssetSet(
		core.Asset{Path: "style.scss", Source: "src/scss/style.scss", Content: []byte(`@import "config/iconfont";`)},
		core.Asset{Path: "config/_iconfont.scss", Source: "src/scss/config/_iconfont.scss", Content: []byte(`$x: 1;`)},
	)
}

func TestSass_CompilesOnlyTheEntry(t *testing.T) {
	root := t.TempDir()
	tp := &fakeTranspiler{css: "body {\n  margin: 0;\n}\n"}
	u := &Sass{Entry: "src/scss/style.scss", Root: root, IncludePaths: []string{"node_modules"}, Transpiler: tp}

	out, err := u.Apply(context.Background(), styleInputs())
	require.NoError(t, err)

	require.Equal(t, []string{"style.css"}, out.Paths())
	assert.Equal(t, tp.css, string(out.Assets[0].Content))

	assert.Equal(t, `@import "config/iconfont";`, tp.got.Source)
	assert.Equal(t, godartsass.SourceSyntaxSCSS, tp.got.SourceSyntax)
	assert.Equal(t, godartsass.OutputStyleExpanded, tp.got.OutputStyle)
	assert.Equal(t, []string{
		filepath.Join(root, "src", "scss"),
		filepath.Join(root, "node_modules"),
	}, tp.got.IncludePaths)
	assert.Contains(t, tp.got.URL, "file://")
	assert.Contains(t, tp.got.URL, "src/scss/style.scss")
}

func TestSass_DotSlashEntry(t *testing.T) {
	root := t.TempDir()
	tp := &fakeTranspiler{css: "a{}"}
	u := &Sass{Entry: "./src/scss/style.scss", Root: root, Transpiler: tp}

	out, err := u.Apply(context.Background(), styleInputs())
	require.NoError(t, err)
	require.Equal(t, []string{"style.css"}, out.Paths())
	assert.Equal(t, []string{filepath.Join(root, "src", "scss")}, tp.got.IncludePaths)
	assert.Equal(t, (&Sass{Entry: "src/scss/style.scss"}).Fingerprint(), (&Sass{Entry: "./src/scss/style.scss"}).Fingerprint())
}

func TestSass_MissingEntry(t *testing.T) {
	u := &Sass{Entry: "src/scss/main.scss", Root: t.TempDir(), Transpiler: &fakeTranspiler{}}
	_, err := u.Apply(context.Background(), styleInputs())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMissingInput))
}

func TestSass_CompileErrorNamesTheEntry(t *testing.T) {
	u := &Sass{Entry: "src/scss/style.scss", Root: t.TempDir(), Transpiler: &fakeTranspiler{err: errors.New("Undefined variable.")}}
	_, err := u.Apply(context.Background(), styleInputs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "src/scss/style.scss")
	assert.Contains(t, err.Error(), "Undefined variable.")
}

func TestSass_NoTranspiler(t *testing.T) {
	_, err := (&Sass{Entry: "src/scss/style.scss"}).Apply(context.Background(), styleInputs())
	require.Error(t, err)
}

func TestSass_FingerprintTracksOptions(t *testing.T) {
	a := &Sass{Entry: "src/scss/style.scss"}
	b := &Sass{Entry: "src/scss/style.scss", Style: godartsass.OutputStyleCompressed}
	c := &Sass{Entry: "src/scss/style.scss", IncludePaths: []string{"vendor"}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	// The project root is machine specific and must not affect the hash.
	d := &Sass{Entry: "src/scss/style.scss", Root: "/elsewhere"}
	assert.Equal(t, a.Fingerprint(), d.Fingerprint())
}

func TestSourceSyntax(t *testing.T) {
	assert.Equal(t, godartsass.SourceSyntaxSASS, sourceSyntax("a/b.sass"))
	assert.Equal(t, godartsass.SourceSyntaxCSS, sourceSyntax("a/b.CSS"))
	assert.Equal(t, godartsass.SourceSyntaxSCSS, sourceSyntax("a/b.scss"))
}

func TestDartSass_CloseBeforeStart(t *testing.T) {
	assert.NoError(t, NewDartSass("").Close())
}
