package pipeline

import (
	"io"
	"path"

	"assetweaver/internal/config"
	"assetweaver/internal/core"
	"assetweaver/internal/iconfont"
	"assetweaver/internal/lint"
	"assetweaver/internal/transform"
)

// Chain names.
const (
	ChainClean   = "clean"
	ChainIcons   = "icons"
	ChainStyles  = "styles"
	ChainScripts = "scripts"
	ChainMarkup  = "markup"
	ChainImages  = "images"
	ChainFonts   = "fonts"
	ChainLint    = "lint"
)

// Deps are the external capabilities the chains delegate to.
type Deps struct {
	// Root is the absolute project root.
	Root string

	Transpiler    transform.Transpiler
	IconGenerator iconfont.Generator
	IconCommandID string
	Linter        lint.Linter
	LinterID      string

	// LintReport receives the formatted lint report.
	LintReport io.Writer
}

// BuildChains assembles every chain the configuration enables, by name.
func BuildChains(cfg *config.Config, deps Deps) (map[string]core.Chain, error) {
	autoprefix, err := transform.NewAutoprefix(cfg.Styles.Browsers)
	if err != nil {
		return nil, err
	}
	start, err := cfg.Icons.Codepoint()
	if err != nil {
		return nil, err
	}

	chains := map[string]core.Chain{
		ChainClean: {
			Name:   ChainClean,
			Remove: cleanPaths(cfg),
		},
		ChainStyles: {
			Name: ChainStyles,
			// Partials are inputs too, so editing one invalidates the cache.
			Sources:  []string{cfg.Styles.Entry, path.Join(path.Dir(cfg.Styles.Entry), "**/*.{scss,sass}")},
			Dest:     cfg.OutputPath(cfg.Styles.Dest),
			Required: true,
			Units: []core.Unit{
				&transform.Sass{
					Entry:        cfg.Styles.Entry,
					Root:         deps.Root,
					IncludePaths: cfg.Styles.IncludePaths,
					Transpiler:   deps.Transpiler,
				},
				autoprefix,
				&transform.Rename{From: ".css", Extname: cfg.Styles.Extname},
				transform.NewMinifyCSS(),
			},
		},
		ChainScripts: {
			Name:    ChainScripts,
			Sources: cfg.Scripts.Src,
			Dest:    cfg.OutputPath(cfg.Scripts.Dest),
			Units: []core.Unit{
				&transform.Concat{Bundle: cfg.Scripts.Bundle},
				transform.MinifyJS{},
				&transform.Rename{From: ".js", Extname: cfg.Scripts.Extname},
			},
		},
		ChainMarkup: {
			Name:    ChainMarkup,
			Sources: cfg.Markup.Src,
			Dest:    cfg.OutputPath(cfg.Markup.Dest),
		},
		ChainImages: {
			Name:    ChainImages,
			Sources: cfg.Images.Src,
			Dest:    cfg.OutputPath(cfg.Images.Dest),
		},
		ChainIcons: {
			Name:    ChainIcons,
			Sources: append(append([]string{}, cfg.Icons.Src...), cfg.Icons.Template),
			Dest:    cfg.OutputPath(cfg.Icons.Dest),
			Units: []core.Unit{&iconfont.Unit{
				Template:           cfg.Icons.Template,
				FragmentDest:       cfg.Icons.FragmentDest,
				FontName:           cfg.Icons.FontName,
				FontPath:           cfg.Icons.FontPath,
				Formats:            cfg.Icons.Formats,
				Normalize:          cfg.Icons.Normalize,
				FontHeight:         cfg.Icons.FontHeight,
				CenterHorizontally: cfg.Icons.CenterHorizontally,
				Start:              start,
				Generator:          deps.IconGenerator,
				CommandID:          deps.IconCommandID,
			}},
		},
		// The linter's verdict depends on its own version and plugins, so a
		// clean run is never replayed.
		ChainLint: {
			Name:    ChainLint,
			Sources: lintSources(cfg),
			Dest:    cfg.Output,
			NoCache: true,
			Units: []core.Unit{&lint.Unit{
				RulesFile: cfg.Lint.Rules,
				Linter:    deps.Linter,
				LinterID:  deps.LinterID,
				Report:    deps.LintReport,
			}},
		},
	}

	if cfg.Fonts.Enabled {
		chains[ChainFonts] = core.Chain{
			Name:    ChainFonts,
			Sources: cfg.Fonts.Src,
			Dest:    cfg.OutputPath(cfg.Fonts.Dest),
		}
	}
	return chains, nil
}

func cleanPaths(cfg *config.Config) []string {
	if len(cfg.Clean.Paths) > 0 {
		return cfg.Clean.Paths
	}
	return []string{cfg.Output}
}

func lintSources(cfg *config.Config) []string {
	out := append([]string{}, cfg.Lint.Src...)
	if cfg.Lint.Rules != "" {
		out = append(out, cfg.Lint.Rules)
	}
	return out
}
