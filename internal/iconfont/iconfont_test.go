package iconfont

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetweaver/internal/core"
)

const testTemplate = `@font-face { font-family: "{{.FontName}}"; src: url("{{.FontPath}}{{.FontName}}.woff2?{{.FontDate}}"); }
$icons: (
{{- range .Glyphs}}
  "{{.Name}}": "{{.CSSEscape}}",
{{- end}}
);
`

const templateSource = "src/scss/config/iconfont-template/_iconfont.scss"

type fakeGenerator struct {
	calls int
	got   Request
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, req Request) (*core.AssetSet, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	out := &core.AssetSet{}
	for _, format := range req.Formats {
		out.Assets = append(out.Assets, core.Asset{
			Path:    req.FontName + "." + format,
			Content: []byte(format + ":" + req.Glyphs[0].Name),
		})
	}
	out.Sort()
	return out, nil
}

func svg(name string) core.Asset {
	return core.Asset{Path: name + ".svg", Source: "src/images/svg/" + name + ".svg", Content: []byte("<svg id=\"" + name + "\"/>")}
}

func tmplAsset() core.Asset {
	return core.Asset{Path: "_iconfont.scss", Source: templateSource, Content: []byte(testTemplate)}
}

func newUnit(gen Generator) *Unit {
	return &Unit{
		Template:     templateSource,
		FragmentDest: "src/scss/config",
		FontName:     "iconfont",
		FontPath:     "../fonts/",
		Formats:      []string{"woff", "woff2"},
		Normalize:    true,
		FontHeight:   1000,
		Generator:    gen,
	}
}

func TestGlyphs_SequentialCodepointsInNameOrder(t *testing.T) {
	set := core.NewAssetSet(svg("search"), svg("arrow"), svg("close"), core.Asset{Path: "notes.txt"})
	glyphs, err := Glyphs(set, DefaultStart)
	require.NoError(t, err)

	require.Len(t, glyphs, 3)
	assert.Equal(t, "arrow", glyphs[0].Name)
	assert.Equal(t, "EA01", glyphs[0].Hex())
	assert.Equal(t, "close", glyphs[1].Name)
	assert.Equal(t, "EA02", glyphs[1].Hex())
	assert.Equal(t, "search", glyphs[2].Name)
	assert.Equal(t, `\ea03`, glyphs[2].CSSEscape())
	assert.Equal(t, string(rune(0xEA03)), glyphs[2].Unicode())
	assert.Equal(t, "uEA01-arrow.svg", glyphs[0].FileName())
}

func TestGlyphs_DuplicateName(t *testing.T) {
	set := core.NewAssetSet(
		core.Asset{Path: "a/home.svg", Source: "icons/a/home.svg"},
		core.Asset{Path: "b/home.svg", Source: "icons/b/home.svg"},
	)
	_, err := Glyphs(set, DefaultStart)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"home"`)
}

func TestUnit_FragmentHasOneEntryPerGlyph(t *testing.T) {
	gen := &fakeGenerator{}
	in := core.NewAssetSet(svg("search"), svg("arrow"), svg("close"), tmplAsset())

	out, err := newUnit(gen).Apply(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, []string{"_iconfont.scss", "iconfont.woff", "iconfont.woff2"}, out.Paths())

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "EA01", gen.got.StartCodepoint)
	assert.Len(t, gen.got.Glyphs, 3)

	fragment := out.Assets[0]
	assert.Equal(t, "src/scss/config", fragment.Dest)
	assert.Equal(t, "src/scss/config/_iconfont.scss", fragment.OutputPath("assets/fonts"))
	assert.Equal(t, "assets/fonts/iconfont.woff", out.Assets[1].OutputPath("assets/fonts"))

	body := string(fragment.Content)
	for _, name := range []string{"arrow", "close", "search"} {
		assert.Equal(t, 1, strings.Count(body, `"`+name+`":`), name)
	}
	assert.Contains(t, body, `"arrow": "\ea01"`)
	assert.Contains(t, body, `"search": "\ea03"`)
	assert.Contains(t, body, `url("../fonts/iconfont.woff2?`)
}

func TestUnit_FontDateFollowsFontContent(t *testing.T) {
	render := func(names ...string) string {
		in := &core.AssetSet{Assets: []core.Asset{tmplAsset()}}
		for _, n := range names {
			in.Assets = append(in.Assets, svg(n))
		}
		in.Sort()
		out, err := newUnit(&fakeGenerator{}).Apply(context.Background(), in)
		require.NoError(t, err)
		return string(out.Assets[0].Content)
	}
	assert.Equal(t, render("arrow"), render("arrow"))
	assert.NotEqual(t, render("arrow"), render("bell"))
}

func TestUnit_NoIconsNoTemplate(t *testing.T) {
	gen := &fakeGenerator{}
	out, err := newUnit(gen).Apply(context.Background(), &core.AssetSet{})
	require.NoError(t, err)
	assert.Zero(t, out.Len())
	assert.Zero(t, gen.calls)
}

func TestUnit_TemplateOnly(t *testing.T) {
	gen := &fakeGenerator{}
	out, err := newUnit(gen).Apply(context.Background(), core.NewAssetSet(tmplAsset()))
	require.NoError(t, err)
	require.Equal(t, []string{"_iconfont.scss"}, out.Paths())
	assert.Zero(t, gen.calls)
	assert.Contains(t, string(out.Assets[0].Content), "$icons: (\n);")
}

func TestUnit_IconsWithoutTemplate(t *testing.T) {
	_, err := newUnit(&fakeGenerator{}).Apply(context.Background(), core.NewAssetSet(svg("arrow")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMissingInput))
}

func TestUnit_GeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("svgtofont: not found")}
	_, err := newUnit(gen).Apply(context.Background(), core.NewAssetSet(svg("arrow"), tmplAsset()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "svgtofont: not found")
}

func TestUnit_BadTemplate(t *testing.T) {
	bad := tmplAsset()
	bad.Content = []byte("{{.Nope}}")
	_, err := newUnit(&fakeGenerator{}).Apply(context.Background(), core.NewAssetSet(svg("arrow"), bad))
	require.Error(t, err)
}

func TestUnit_FingerprintTracksOptions(t *testing.T) {
	a := newUnit(nil)
	b := newUnit(nil)
	b.FontHeight = 512
	c := newUnit(nil)
	c.Formats = []string{"woff2"}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Equal(t, a.Fingerprint(), newUnit(&fakeGenerator{}).Fingerprint())
}

// fakeFontScript stands in for svgtofont: it writes one file per format
// built from the staged SVG names, plus files that must not be harvested.
const fakeFontScript = `set -e
ls {{quote .SourceDir}} > {{quote .OutDir}}/{{.FontName}}.woff
echo {{.FormatList}} > {{quote .OutDir}}/{{.FontName}}.woff2
echo preview > {{quote .OutDir}}/{{.FontName}}.html
echo junk > {{quote .OutDir}}/other.ttf`

func TestCommandGenerator_HarvestsRequestedFormats(t *testing.T) {
	gen, err := NewCommandGenerator(fakeFontScript, core.NewExecutor(t.TempDir()), core.PassthroughEnv([]string{"PATH"}))
	require.NoError(t, err)

	glyphs, err := Glyphs(core.NewAssetSet(svg("close"), svg("arrow")), DefaultStart)
	require.NoError(t, err)

	fonts, err := gen.Generate(context.Background(), Request{
		FontName: "iconfont",
		Formats:  []string{"woff", "woff2"},
		Glyphs:   glyphs,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"iconfont.woff", "iconfont.woff2"}, fonts.Paths())
	assert.Equal(t, "uEA01-arrow.svg\nuEA02-close.svg\n", string(fonts.Assets[0].Content))
	assert.Equal(t, "woff,woff2\n", string(fonts.Assets[1].Content))
}

func TestCommandGenerator_StagesFontOptions(t *testing.T) {
	script := `cp {{quote .ConfigFile}} {{quote .OutDir}}/{{.FontName}}.woff`
	gen, err := NewCommandGenerator(script, core.NewExecutor(t.TempDir()), core.PassthroughEnv([]string{"PATH"}))
	require.NoError(t, err)

	glyphs, err := Glyphs(core.NewAssetSet(svg("arrow")), DefaultStart)
	require.NoError(t, err)
	fonts, err := gen.Generate(context.Background(), Request{
		FontName:           "iconfont",
		Formats:            []string{"woff"},
		Normalize:          true,
		FontHeight:         1000,
		CenterHorizontally: true,
		StartCodepoint:     "EA01",
		Glyphs:             glyphs,
	})
	require.NoError(t, err)
	require.Len(t, fonts.Assets, 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(fonts.Assets[0].Content, &got))
	assert.Equal(t, "iconfont", got["fontName"])
	assert.Equal(t, false, got["css"])
	assert.Equal(t, float64(0xEA01), got["startUnicode"])
	assert.Equal(t, map[string]interface{}{
		"fontHeight":         float64(1000),
		"normalize":          true,
		"centerHorizontally": true,
	}, got["svgicons2svgfont"])
	assert.True(t, strings.HasSuffix(got["src"].(string), "svg"))
	assert.True(t, strings.HasSuffix(got["dist"].(string), "out"))
}

func TestSvgtofontOptions_BadCodepoint(t *testing.T) {
	_, err := SvgtofontOptions(Request{FontName: "iconfont", StartCodepoint: "zz"})
	assert.Error(t, err)
}

func TestUnit_PassesFontOptionsToGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	u := newUnit(gen)
	u.CenterHorizontally = true
	u.Start = 0xF101
	_, err := u.Apply(context.Background(), core.NewAssetSet(svg("arrow"), tmplAsset()))
	require.NoError(t, err)

	assert.True(t, gen.got.Normalize)
	assert.True(t, gen.got.CenterHorizontally)
	assert.Equal(t, 1000, gen.got.FontHeight)
	assert.Equal(t, "F101", gen.got.StartCodepoint)
}

func TestUnit_DotSlashTemplate(t *testing.T) {
	u := newUnit(&fakeGenerator{})
	u.Template = "./" + templateSource
	out, err := u.Apply(context.Background(), core.NewAssetSet(svg("arrow"), tmplAsset()))
	require.NoError(t, err)
	assert.Equal(t, []string{"_iconfont.scss", "iconfont.woff", "iconfont.woff2"}, out.Paths())
}

func TestCommandGenerator_Failures(t *testing.T) {
	exec := core.NewExecutor(t.TempDir())
	glyphs, err := Glyphs(core.NewAssetSet(svg("arrow")), DefaultStart)
	require.NoError(t, err)
	req := Request{FontName: "iconfont", Formats: []string{"woff"}, Glyphs: glyphs}

	gen, err := NewCommandGenerator("echo broken >&2; exit 3", exec, nil)
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3: broken")

	gen, err = NewCommandGenerator("true", exec, nil)
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not produce iconfont.woff")

	_, err = NewCommandGenerator("{{.Broken", exec, nil)
	assert.Error(t, err)
}

func TestIconChain_WritesFontsAndFragment(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("src/images/svg/arrow.svg", "<svg/>")
	write("src/images/svg/close.svg", "<svg/>")
	write(templateSource, testTemplate)

	chain := &core.Chain{
		Name:    "icons",
		Sources: []string{"src/images/svg/*.svg", templateSource},
		Dest:    "assets/fonts",
		Units:   []core.Unit{newUnit(&fakeGenerator{})},
	}
	res, err := core.NewRunner(root, core.NewMemoryCache()).Run(context.Background(), chain)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{
		"assets/fonts/iconfont.woff",
		"assets/fonts/iconfont.woff2",
		"src/scss/config/_iconfont.scss",
	}, res.Outputs)

	fragment, err := os.ReadFile(filepath.Join(root, "src", "scss", "config", "_iconfont.scss"))
	require.NoError(t, err)
	assert.Contains(t, string(fragment), `"close": "\ea02"`)
}
