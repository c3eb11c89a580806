// Package iconfont turns a directory of SVG icons into an icon font and a
// Sass fragment that maps each icon name to its codepoint.
//
// Glyph metadata (names and codepoints) is computed here. Rasterizing the
// glyphs into font files is left to an external generator command.
package iconfont

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"assetweaver/internal/core"
)

// DefaultStart is the first codepoint handed out, in the Unicode private use
// area.
const DefaultStart rune = 0xEA01

// Glyph is one icon of the font.
type Glyph struct {
	// Name is the SVG file name without its extension.
	Name string

	Codepoint rune

	// Source is the project-relative path of the SVG.
	Source string

	content []byte
}

// Hex returns the codepoint as upper-case hex, e.g. "EA01".
func (g Glyph) Hex() string { return fmt.Sprintf("%04X", g.Codepoint) }

// Unicode returns the codepoint as a one-character string.
func (g Glyph) Unicode() string { return string(g.Codepoint) }

// CSSEscape returns the codepoint as a CSS string escape, e.g. `\ea01`.
func (g Glyph) CSSEscape() string { return fmt.Sprintf(`\%x`, g.Codepoint) }

// FileName is the name the SVG is handed to the generator under. The
// "u<HEX>-" prefix is how svgicons2svgfont based tools learn the codepoint.
func (g Glyph) FileName() string { return "u" + g.Hex() + "-" + g.Name + ".svg" }

// Glyphs assigns sequential codepoints, starting at start, to the .svg
// assets in name order. Two icons with the same name are an error because
// the style fragment could not tell them apart.
func Glyphs(set *core.AssetSet, start rune) ([]Glyph, error) {
	var glyphs []Glyph
	seen := make(map[string]string)
	for _, a := range set.Assets {
		if !strings.EqualFold(a.Ext(), ".svg") {
			continue
		}
		base := path.Base(a.Path)
		name := strings.TrimSuffix(base, path.Ext(base))
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate glyph name %q (%s, %s)", name, prev, a.Source)
		}
		seen[name] = a.Source
		glyphs = append(glyphs, Glyph{Name: name, Source: a.Source, content: a.Content})
	}

	sort.Slice(glyphs, func(i, j int) bool { return glyphs[i].Name < glyphs[j].Name })
	for i := range glyphs {
		glyphs[i].Codepoint = start + rune(i)
	}
	return glyphs, nil
}
