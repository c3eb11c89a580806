package transform

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"

	"assetweaver/internal/core"
)

// MinifyCSS minifies every .css asset.
type MinifyCSS struct {
	m *minify.M
}

func NewMinifyCSS() *MinifyCSS {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	return &MinifyCSS{m: m}
}

func (u *MinifyCSS) Name() string        { return "minify-css" }
func (u *MinifyCSS) Fingerprint() string { return "tdewolff" }

func (u *MinifyCSS) Apply(ctx context.Context, in *core.AssetSet) (*core.AssetSet, error) {
	return mapExt(ctx, in, ".css", func(asset core.Asset) ([]byte, error) {
		b, err := u.m.Bytes("text/css", asset.Content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset.Path, err)
		}
		return b, nil
	})
}

// MinifyJS minifies every .js asset: whitespace, identifiers and syntax.
type MinifyJS struct{}

func (MinifyJS) Name() string        { return "minify-js" }
func (MinifyJS) Fingerprint() string { return "esbuild:ws,ident,syntax" }

func (MinifyJS) Apply(ctx context.Context, in *core.AssetSet) (*core.AssetSet, error) {
	return mapExt(ctx, in, ".js", func(asset core.Asset) ([]byte, error) {
		res := api.Transform(string(asset.Content), api.TransformOptions{
			Loader:            api.LoaderJS,
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
			Sourcefile:        asset.Path,
		})
		if err := transformError(asset.Path, res.Errors); err != nil {
			return nil, err
		}
		return res.Code, nil
	})
}
