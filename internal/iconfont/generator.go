package iconfont

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"assetweaver/internal/core"
)

// Request describes one font generation.
type Request struct {
	// SourceDir holds the glyph SVGs, named by Glyph.FileName.
	SourceDir string

	// OutDir is where the generator must write the font files.
	OutDir string

	// ConfigFile is a generated svgtofont options file carrying the font
	// options below, for generators that cannot take them as flags.
	ConfigFile string

	FontName           string
	Formats            []string
	Normalize          bool
	FontHeight         int
	CenterHorizontally bool
	StartCodepoint     string

	Glyphs []Glyph
}

// FormatList returns the formats comma separated, for command templates.
func (r Request) FormatList() string { return strings.Join(r.Formats, ",") }

// Generator rasterizes glyphs into font files. The returned assets are
// named "<FontName>.<format>".
type Generator interface {
	Generate(ctx context.Context, req Request) (*core.AssetSet, error)
}

// CommandGenerator runs an external font generator through core.Executor.
//
// Command is a text/template rendered with the Request; the "quote"
// function shell-quotes a value. The SVGs and the options file are staged in
// a scratch directory and the font files are harvested from OutDir
// afterwards.
type CommandGenerator struct {
	Command  string
	Executor *core.Executor

	// Env is the complete environment of the generator process.
	Env map[string]string

	tmpl *template.Template
}

// NewCommandGenerator parses the command template.
func NewCommandGenerator(command string, executor *core.Executor, env map[string]string) (*CommandGenerator, error) {
	tmpl, err := template.New("iconfont-command").
		Funcs(template.FuncMap{"quote": shellQuote}).
		Option("missingkey=error").
		Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parsing icon font command: %w", err)
	}
	return &CommandGenerator{Command: command, Executor: executor, Env: env, tmpl: tmpl}, nil
}

func (g *CommandGenerator) Generate(ctx context.Context, req Request) (*core.AssetSet, error) {
	scratch, err := os.MkdirTemp("", "assetweaver-iconfont-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	req.SourceDir = filepath.Join(scratch, "svg")
	req.OutDir = filepath.Join(scratch, "out")
	if err := os.MkdirAll(req.SourceDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, err
	}
	for _, gl := range req.Glyphs {
		if err := os.WriteFile(filepath.Join(req.SourceDir, gl.FileName()), gl.content, 0o644); err != nil {
			return nil, fmt.Errorf("staging %s: %w", gl.Source, err)
		}
	}
	options, err := SvgtofontOptions(req)
	if err != nil {
		return nil, err
	}
	req.ConfigFile = filepath.Join(scratch, "svgtofont.json")
	if err := os.WriteFile(req.ConfigFile, options, 0o644); err != nil {
		return nil, fmt.Errorf("staging generator options: %w", err)
	}

	var cmd bytes.Buffer
	if err := g.tmpl.Execute(&cmd, req); err != nil {
		return nil, fmt.Errorf("rendering icon font command: %w", err)
	}

	res, err := g.Executor.Execute(ctx, core.Command{Run: cmd.String(), Env: g.Env})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("icon font generator exited with code %d: %s",
			res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}

	fonts, err := core.NewExtensionHarvester(req.Formats...).Harvest(req.OutDir)
	if err != nil {
		return nil, err
	}
	return selectFonts(fonts, req.FontName, req.Formats)
}

type svgtofontOptions struct {
	Src          string `json:"src"`
	Dist         string `json:"dist"`
	FontName     string `json:"fontName"`
	CSS          bool   `json:"css"`
	StartUnicode uint64 `json:"startUnicode,omitempty"`

	Svgicons2svgfont struct {
		FontHeight         int  `json:"fontHeight,omitempty"`
		Normalize          bool `json:"normalize"`
		CenterHorizontally bool `json:"centerHorizontally"`
	} `json:"svgicons2svgfont"`
}

// SvgtofontOptions renders the request as svgtofont options JSON. The
// generator's own stylesheet is disabled; the fragment replaces it.
func SvgtofontOptions(req Request) ([]byte, error) {
	opts := svgtofontOptions{
		Src:      req.SourceDir,
		Dist:     req.OutDir,
		FontName: req.FontName,
	}
	if req.StartCodepoint != "" {
		v, err := strconv.ParseUint(req.StartCodepoint, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid start codepoint %q: %w", req.StartCodepoint, err)
		}
		opts.StartUnicode = v
	}
	opts.Svgicons2svgfont.FontHeight = req.FontHeight
	opts.Svgicons2svgfont.Normalize = req.Normalize
	opts.Svgicons2svgfont.CenterHorizontally = req.CenterHorizontally
	return json.MarshalIndent(opts, "", "  ")
}

// selectFonts keeps "<name>.<format>" for every requested format, wherever
// the generator put it under OutDir.
func selectFonts(harvested *core.AssetSet, name string, formats []string) (*core.AssetSet, error) {
	out := &core.AssetSet{}
	for _, format := range formats {
		want := name + "." + strings.TrimPrefix(format, ".")
		found := false
		for _, a := range harvested.Assets {
			if filepath.Base(a.Path) == want {
				out.Assets = append(out.Assets, core.Asset{Path: want, Content: a.Content})
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("icon font generator did not produce %s", want)
		}
	}
	out.Sort()
	return out, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
