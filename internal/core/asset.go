package core

import (
	"path"
	"sort"
)

// Asset is a single file flowing through a chain.
type Asset struct {
	// Path is relative to the glob base of the pattern that matched the file
	// (the non-glob directory prefix). It becomes the path under the chain's
	// destination. Always slash-separated.
	Path string

	// Source is the project-relative path the asset was read from. Empty for
	// assets produced by a unit (concat bundles, generated fonts).
	Source string

	// Content is the raw file content.
	Content []byte

	// Dest overrides the chain destination for this asset. It is
	// project-relative.
	Dest string
}

// CleanSource puts a project-relative file path in the form the resolver
// uses for Asset.Source: slash-separated, cleaned, without a leading "./".
func CleanSource(p string) string {
	p = normalizePattern(p)
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// Ext returns the asset's file extension, including the dot.
func (a Asset) Ext() string { return path.Ext(a.Path) }

// AssetSet is an ordered collection of assets. Assets are kept sorted by Path.
type AssetSet struct {
	Assets []Asset
}

// NewAssetSet copies and sorts the given assets.
func NewAssetSet(assets ...Asset) *AssetSet {
	out := make([]Asset, len(assets))
	copy(out, assets)
	s := &AssetSet{Assets: out}
	s.Sort()
	return s
}

// Sort orders the assets by Path, then Source. The secondary key keeps the
// order stable when two patterns map files onto the same relative path.
func (s *AssetSet) Sort() {
	sort.SliceStable(s.Assets, func(i, j int) bool {
		a, b := s.Assets[i], s.Assets[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Source < b.Source
	})
}

// Len returns the number of assets. A nil set is empty.
func (s *AssetSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Assets)
}

// Paths returns the asset paths in order.
func (s *AssetSet) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.Assets))
	for i, a := range s.Assets {
		out[i] = a.Path
	}
	return out
}

// Filter returns the assets for which keep returns true.
func (s *AssetSet) Filter(keep func(Asset) bool) *AssetSet {
	out := &AssetSet{}
	if s == nil {
		return out
	}
	for _, a := range s.Assets {
		if keep(a) {
			out.Assets = append(out.Assets, a)
		}
	}
	return out
}

// OutputPath returns where the asset is written, relative to the project root.
func (a Asset) OutputPath(chainDest string) string {
	dest := chainDest
	if a.Dest != "" {
		dest = a.Dest
	}
	return path.Clean(path.Join(dest, a.Path))
}
