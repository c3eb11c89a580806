package iconfont

import (
	"context"
	"fmt"
	"path"
	"strings"

	"assetweaver/internal/core"
)

// Unit is the core.Unit of the icon chain.
//
// Its inputs are the glyph SVGs plus the fragment template. It emits the
// font files (written to the chain destination) and the rendered fragment,
// whose Dest points back into the source tree.
type Unit struct {
	// Template is the project-relative path of the fragment template.
	Template string

	// FragmentDest is the project-relative directory the fragment is
	// written to, under the template's file name.
	FragmentDest string

	FontName           string
	FontPath           string
	Formats            []string
	Normalize          bool
	FontHeight         int
	CenterHorizontally bool
	Start              rune

	Generator Generator

	// CommandID identifies the generator configuration in the fingerprint.
	CommandID string
}

func (u *Unit) Name() string { return "iconfont" }

func (u *Unit) Fingerprint() string {
	return fmt.Sprintf("font=%s;path=%s;formats=%s;normalize=%t;height=%d;center=%t;start=%X;tmpl=%s;dest=%s;cmd=%s",
		u.FontName, u.FontPath, strings.Join(u.Formats, ","), u.Normalize, u.FontHeight,
		u.CenterHorizontally, u.Start, u.Template, u.FragmentDest, u.CommandID)
}

// Apply generates the font and renders the fragment.
//
// With no SVGs the generator is not run and the fragment lists no glyphs.
// With neither SVGs nor a template the unit produces nothing, so projects
// without icons build cleanly.
func (u *Unit) Apply(ctx context.Context, in *core.AssetSet) (*core.AssetSet, error) {
	template := core.CleanSource(u.Template)
	var tmpl *core.Asset
	svgs := in.Filter(func(a core.Asset) bool {
		if a.Source == template {
			return false
		}
		return strings.EqualFold(a.Ext(), ".svg")
	})
	for i := range in.Assets {
		if in.Assets[i].Source == template {
			tmpl = &in.Assets[i]
		}
	}

	glyphs, err := Glyphs(svgs, u.start())
	if err != nil {
		return nil, err
	}
	if len(glyphs) == 0 && tmpl == nil {
		return &core.AssetSet{}, nil
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrMissingInput, u.Template)
	}

	out := &core.AssetSet{}
	fonts := &core.AssetSet{}
	if len(glyphs) > 0 {
		if u.Generator == nil {
			return nil, fmt.Errorf("no icon font generator configured")
		}
		fonts, err = u.Generator.Generate(ctx, Request{
			FontName:           u.FontName,
			Formats:            u.Formats,
			Normalize:          u.Normalize,
			FontHeight:         u.FontHeight,
			CenterHorizontally: u.CenterHorizontally,
			StartCodepoint:     fmt.Sprintf("%X", u.start()),
			Glyphs:             glyphs,
		})
		if err != nil {
			return nil, fmt.Errorf("generating %s: %w", u.FontName, err)
		}
		out.Assets = append(out.Assets, fonts.Assets...)
	}

	fragment, err := RenderFragment(u.Template, tmpl.Content, FragmentData{
		Glyphs:   glyphs,
		FontName: u.FontName,
		FontPath: u.FontPath,
		FontDate: fontDate(fonts),
	})
	if err != nil {
		return nil, err
	}
	out.Assets = append(out.Assets, core.Asset{
		Path:    path.Base(u.Template),
		Content: fragment,
		Dest:    u.FragmentDest,
	})
	out.Sort()
	return out, nil
}

func (u *Unit) start() rune {
	if u.Start == 0 {
		return DefaultStart
	}
	return u.Start
}
