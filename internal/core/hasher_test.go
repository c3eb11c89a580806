package core

import (
	"context"
	"testing"
)

type stubUnit struct {
	name        string
	fingerprint string
}

func (u stubUnit) Name() string        { return u.name }
func (u stubUnit) Fingerprint() string { return u.fingerprint }
func (u stubUnit) Apply(_ context.Context, in *AssetSet) (*AssetSet, error) {
	return in, nil
}

func baseHashInput() HashInput {
	return HashInput{
		Chain: &Chain{
			Name:    "scripts",
			Sources: []string{"src/js/*.js"},
			Dest:    "assets/js",
			Units:   []Unit{stubUnit{"concat", "bundle.js"}, stubUnit{"minify-js", ""}},
		},
		Inputs: NewAssetSet(
			Asset{Path: "a.js", Source: "src/js/a.js", Content: []byte("var a")},
			Asset{Path: "b.js", Source: "src/js/b.js", Content: []byte("var b")},
		),
	}
}

// Identical inputs must produce identical hashes.
func TestComputeHash_IdenticalInputs(t *testing.T) {
	h := NewChainHasher()
	if h.ComputeHash(baseHashInput()) != h.ComputeHash(baseHashInput()) {
		t.Fatal("expected identical hashes for identical inputs")
	}
}

func TestComputeHash_SourceOrderIrrelevant(t *testing.T) {
	h := NewChainHasher()
	a := baseHashInput()
	b := baseHashInput()
	a.Chain.Sources = []string{"src/js/*.js", "src/vendor/*.js"}
	b.Chain.Sources = []string{"src/vendor/*.js", "src/js/*.js"}
	if h.ComputeHash(a) != h.ComputeHash(b) {
		t.Fatal("source pattern order must not affect the hash")
	}
}

func TestComputeHash_Changes(t *testing.T) {
	h := NewChainHasher()
	base := h.ComputeHash(baseHashInput())

	mutations := map[string]func(*HashInput){
		"content": func(in *HashInput) { in.Inputs.Assets[0].Content = []byte("var changed") },
		"path":    func(in *HashInput) { in.Inputs.Assets[1].Path = "c.js" },
		"dest":    func(in *HashInput) { in.Chain.Dest = "public/js" },
		"unit option": func(in *HashInput) {
			in.Chain.Units[0] = stubUnit{"concat", "app.js"}
		},
		"unit order": func(in *HashInput) {
			in.Chain.Units[0], in.Chain.Units[1] = in.Chain.Units[1], in.Chain.Units[0]
		},
		"required":    func(in *HashInput) { in.Chain.Required = true },
		"extra input": func(in *HashInput) { in.Inputs.Assets = append(in.Inputs.Assets, Asset{Path: "d.js"}) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseHashInput()
			mutate(&in)
			if h.ComputeHash(in) == base {
				t.Fatalf("expected %s change to produce a new hash", name)
			}
		})
	}
}

func TestComputeHash_NilInputs(t *testing.T) {
	h := NewChainHasher()
	in := baseHashInput()
	in.Inputs = nil
	if h.ComputeHash(in) == "" {
		t.Fatal("expected a hash for a chain with no inputs")
	}
}
