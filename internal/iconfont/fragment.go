package iconfont

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"text/template"

	"assetweaver/internal/core"
)

// FragmentData is what the style fragment template sees.
type FragmentData struct {
	Glyphs   []Glyph
	FontName string
	FontPath string

	// FontDate is a cache-busting token for font URLs. It is derived from
	// the generated font bytes, so it only changes when the font does.
	FontDate string
}

// RenderFragment renders the style fragment template.
func RenderFragment(name string, tmplText []byte, data FragmentData) ([]byte, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(tmplText))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func fontDate(fonts *core.AssetSet) string {
	h := sha256.New()
	for _, a := range fonts.Assets {
		h.Write([]byte(a.Path))
		h.Write(a.Content)
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}
