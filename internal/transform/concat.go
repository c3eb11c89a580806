package transform

import (
	"bytes"
	"context"
	"fmt"

	"assetweaver/internal/core"
)

// Concat joins every asset, in path order, into a single bundle.
//
// An empty input produces no bundle.
type Concat struct {
	// Bundle is the output file name.
	Bundle string

	// Separator defaults to a newline.
	Separator string
}

func (c *Concat) Name() string { return "concat" }

func (c *Concat) Fingerprint() string {
	return fmt.Sprintf("bundle=%s;sep=%q", c.Bundle, c.separator())
}

func (c *Concat) Apply(_ context.Context, in *core.AssetSet) (*core.AssetSet, error) {
	if c.Bundle == "" {
		return nil, fmt.Errorf("concat: bundle name is required")
	}
	if in.Len() == 0 {
		return &core.AssetSet{}, nil
	}

	sep := []byte(c.separator())
	var buf bytes.Buffer
	for i, a := range in.Assets {
		if i > 0 {
			buf.Write(sep)
		}
		buf.Write(a.Content)
	}
	return core.NewAssetSet(core.Asset{Path: c.Bundle, Content: buf.Bytes()}), nil
}

func (c *Concat) separator() string {
	if c.Separator == "" {
		return "\n"
	}
	return c.Separator
}
