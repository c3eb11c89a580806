package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Harvester collects the files an external tool wrote into a scratch
// directory and turns them into assets.
//
// Only files accepted by Accept are collected; everything else the tool left
// behind (logs, previews, intermediate files) is ignored.
type Harvester struct {
	// Accept filters harvested files by their slash-separated path relative
	// to the harvested directory. Nil accepts everything.
	Accept func(rel string) bool
}

// NewExtensionHarvester accepts files whose extension, without the dot, is
// listed in exts.
func NewExtensionHarvester(exts ...string) *Harvester {
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return &Harvester{Accept: func(rel string) bool {
		_, ok := allowed[strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), "."))]
		return ok
	}}
}

// Harvest walks dir recursively and returns the accepted files as assets
// addressed relative to dir, sorted by path.
//
// Returns an error if dir does not exist: a tool that was asked to write
// output and produced no directory has failed.
func (h *Harvester) Harvest(dir string) (*AssetSet, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("output directory does not exist: %s", dir)
		}
		return nil, fmt.Errorf("stat output directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output path is not a directory: %s", dir)
	}

	set := &AssetSet{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if h.Accept != nil && !h.Accept(rel) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %q: %w", rel, err)
		}
		set.Assets = append(set.Assets, Asset{Path: rel, Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting files from %q: %w", dir, err)
	}

	// Do not rely on filesystem ordering.
	set.Sort()
	return set, nil
}
