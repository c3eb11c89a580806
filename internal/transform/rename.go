package transform

import (
	"context"
	"fmt"
	"strings"

	"assetweaver/internal/core"
)

// Rename replaces the extension of every asset whose extension is From
// ("style.css" becomes "style.min.css" for From ".css", Extname ".min.css").
type Rename struct {
	From    string
	Extname string
}

func (r *Rename) Name() string        { return "rename" }
func (r *Rename) Fingerprint() string { return fmt.Sprintf("%s->%s", r.From, r.Extname) }

func (r *Rename) Apply(_ context.Context, in *core.AssetSet) (*core.AssetSet, error) {
	if !strings.HasPrefix(r.Extname, ".") {
		return nil, fmt.Errorf("rename: extname %q must start with a dot", r.Extname)
	}
	out := &core.AssetSet{Assets: make([]core.Asset, 0, in.Len())}
	for _, a := range in.Assets {
		if r.From == "" || strings.EqualFold(a.Ext(), r.From) {
			a.Path = replaceExt(a.Path, r.Extname)
		}
		out.Assets = append(out.Assets, a)
	}
	out.Sort()
	return out, nil
}
