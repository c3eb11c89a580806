package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetweaver/internal/core"
)

func TestParseBrowsers(t *testing.T) {
	engines, err := ParseBrowsers([]string{"last 2 versions"})
	require.NoError(t, err)
	require.Len(t, engines, len(latestEngines))
	for _, e := range engines {
		if e.Name == api.EngineChrome {
			assert.Equal(t, "130", e.Version)
		}
	}

	engines, err = ParseBrowsers([]string{"Safari 14", "safari 15", "ie 11"})
	require.NoError(t, err)
	want := []api.Engine{{Name: api.EngineIE, Version: "11"}, {Name: api.EngineSafari, Version: "14"}}
	sortEngines(want)
	if diff := cmp.Diff(want, engines); diff != "" {
		t.Fatalf("engines mismatch (-want +got):\n%s", diff)
	}

	defaults, err := ParseBrowsers([]string{"defaults"})
	require.NoError(t, err)
	last2, err := ParseBrowsers([]string{"last 2 versions"})
	require.NoError(t, err)
	assert.Equal(t, last2, defaults)

	for _, bad := range []string{"> 1%", "netscape 4", "last x versions", "chrome new"} {
		_, err := ParseBrowsers([]string{bad})
		assert.Error(t, err, bad)
	}
}

func sortEngines(e []api.Engine) {
	for i := 1; i < len(e); i++ {
		for j := i; j > 0 && e[j].Name < e[j-1].Name; j-- {
			e[j], e[j-1] = e[j-1], e[j]
		}
	}
}

func TestAutoprefix_AddsVendorPrefixes(t *testing.T) {
	u, err := NewAutoprefix([]string{"safari 14"})
	require.NoError(t, err)

	in := core.NewAssetSet(
		core.Asset{Path: "style.css", Content: []byte(".a { user-select: none; }\n")},
		core.Asset{Path: "notes.txt", Content: []byte("user-select: none")},
	)
	out, err := u.Apply(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, []string{"notes.txt", "style.css"}, out.Paths())

	assert.Contains(t, string(out.Assets[1].Content), "-webkit-user-select: none")
	assert.Equal(t, "user-select: none", string(out.Assets[0].Content))
	assert.Equal(t, ".a { user-select: none; }\n", string(in.Assets[1].Content), "input must not be mutated")
}

func TestMinifyCSS(t *testing.T) {
	in := core.NewAssetSet(core.Asset{Path: "style.min.css", Content: []byte("body {\n  margin: 0px;\n  color: #ff0000;\n}\n")})
	out, err := NewMinifyCSS().Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "body{margin:0;color:red}", string(out.Assets[0].Content))
}

func TestMinifyJS(t *testing.T) {
	src := "function add(first, second) {\n  return first + second;\n}\nconsole.log(add(1, 2));\n"
	out, err := MinifyJS{}.Apply(context.Background(), core.NewAssetSet(core.Asset{Path: "bundle.js", Content: []byte(src)}))
	require.NoError(t, err)

	got := string(out.Assets[0].Content)
	assert.Less(t, len(got), len(src))
	assert.NotContains(t, got, "first")
	assert.Contains(t, got, "console.log")
}

func TestMinifyJS_SyntaxError(t *testing.T) {
	_, err := MinifyJS{}.Apply(context.Background(), core.NewAssetSet(core.Asset{Path: "broken.js", Content: []byte("function (")}))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "broken.js:"), err.Error())
}

func TestConcat_JoinsInPathOrder(t *testing.T) {
	in := core.NewAssetSet(
		core.Asset{Path: "b.js", Content: []byte("var b;")},
		core.Asset{Path: "a.js", Content: []byte("var a;")},
		core.Asset{Path: "c.js", Content: []byte("var c;")},
	)
	out, err := (&Concat{Bundle: "bundle.js"}).Apply(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, []string{"bundle.js"}, out.Paths())
	assert.Equal(t, "var a;\nvar b;\nvar c;", string(out.Assets[0].Content))
}

func TestConcat_EmptyInputProducesNothing(t *testing.T) {
	out, err := (&Concat{Bundle: "bundle.js"}).Apply(context.Background(), &core.AssetSet{})
	require.NoError(t, err)
	assert.Zero(t, out.Len())

	_, err = (&Concat{}).Apply(context.Background(), &core.AssetSet{})
	assert.Error(t, err)
}

func TestRename(t *testing.T) {
	in := core.NewAssetSet(
		core.Asset{Path: "style.css"},
		core.Asset{Path: "vendor/reset.css"},
		core.Asset{Path: "readme.md"},
	)
	out, err := (&Rename{From: ".css", Extname: ".min.css"}).Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"readme.md", "style.min.css", "vendor/reset.min.css"}, out.Paths())

	_, err = (&Rename{Extname: "min.css"}).Apply(context.Background(), in)
	assert.Error(t, err)
}

func TestUnits_RespectCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMinifyCSS().Apply(ctx, core.NewAssetSet(core.Asset{Path: "a.css", Content: []byte("a{}")}))
	assert.ErrorIs(t, err, context.Canceled)
}
