// Package config loads assetweaver.yml.
//
// DefaultConfig reproduces the layout of a plain front-end project (src/ in,
// assets/ out). A missing config file is not an error; the defaults apply.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"assetweaver/internal/core"
)

// DefaultFile is the config file name looked up under the working directory.
const DefaultFile = "assetweaver.yml"

// DefaultIconCommand drives svgtofont through its Node API with the options
// file the icon chain stages, so every icon option reaches the generator.
const DefaultIconCommand = `node -e "const m = require('svgtofont'); ` +
	`Promise.resolve((m.default || m)(require(process.argv[1]))).catch((e) => { console.error(e); process.exit(1); })" ` +
	`{{quote .ConfigFile}}`

// Preset names select one of the pipeline variants.
const (
	PresetStandard = "standard"
	PresetFonts    = "fonts"
	PresetClean    = "clean"
)

// ValidPresets lists the accepted preset names.
var ValidPresets = []string{PresetStandard, PresetFonts, PresetClean}

// Config holds all assetweaver configuration.
type Config struct {
	Preset string `yaml:"preset"`

	// Output is the output root shared by every chain destination.
	Output string `yaml:"output"`

	// CacheDir and StateDB live under .assetweaver by default.
	CacheDir string `yaml:"cache_dir"`
	StateDB  string `yaml:"state_db"`

	// Concurrency bounds the number of chains running at once.
	Concurrency int `yaml:"concurrency"`

	Styles  StylesConfig  `yaml:"styles"`
	Scripts ScriptsConfig `yaml:"scripts"`
	Markup  CopyConfig    `yaml:"markup"`
	Images  CopyConfig    `yaml:"images"`
	Fonts   FontsConfig   `yaml:"fonts"`
	Icons   IconsConfig   `yaml:"icons"`
	Lint    LintConfig    `yaml:"lint"`
	Clean   CleanConfig   `yaml:"clean"`
	Watch   WatchConfig   `yaml:"watch"`
	Server  ServerConfig  `yaml:"server"`
	Tools   ToolsConfig   `yaml:"tools"`
}

// StylesConfig configures the Sass chain.
type StylesConfig struct {
	Entry        string   `yaml:"entry"`
	Dest         string   `yaml:"dest"`
	IncludePaths []string `yaml:"include_paths"`
	Browsers     []string `yaml:"browsers"`
	Extname      string   `yaml:"extname"`
	// SassBinary is the dart-sass executable; empty means look it up on PATH.
	SassBinary string `yaml:"sass_binary"`
}

// ScriptsConfig configures the JavaScript chain.
type ScriptsConfig struct {
	Src     []string `yaml:"src"`
	Dest    string   `yaml:"dest"`
	Bundle  string   `yaml:"bundle"`
	Extname string   `yaml:"extname"`
}

// CopyConfig configures a pure copy chain.
type CopyConfig struct {
	Src  []string `yaml:"src"`
	Dest string   `yaml:"dest"`
}

// FontsConfig configures the font copy chain, enabled by the fonts preset.
type FontsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Src     []string `yaml:"src"`
	Dest    string   `yaml:"dest"`
}

// IconsConfig configures icon font generation and its style fragment.
type IconsConfig struct {
	Src                []string `yaml:"src"`
	Dest               string   `yaml:"dest"`
	FontName           string   `yaml:"font_name"`
	Formats            []string `yaml:"formats"`
	Normalize          bool     `yaml:"normalize"`
	FontHeight         int      `yaml:"font_height"`
	CenterHorizontally bool     `yaml:"center_horizontally"`
	StartCodepoint     string   `yaml:"start_codepoint"`
	Template           string   `yaml:"template"`
	FragmentDest       string   `yaml:"fragment_dest"`
	FontPath           string   `yaml:"font_path"`
	Command            string   `yaml:"command"`
}

// LintConfig configures the stylesheet lint chain.
type LintConfig struct {
	Src []string `yaml:"src"`
	// Rules is a sass-lint style file whose rule severities override the
	// ones reported by the linter.
	Rules   string `yaml:"rules"`
	Command string `yaml:"command"`
}

// CleanConfig configures the clean step that runs before a full build.
type CleanConfig struct {
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"`
}

// WatchBinding maps glob patterns to the chain rebuilt when they change.
type WatchBinding struct {
	Chain    string   `yaml:"chain"`
	Patterns []string `yaml:"patterns"`
}

// WatchConfig lists the watch bindings.
type WatchConfig struct {
	Bindings []WatchBinding `yaml:"bindings"`
}

// ServerConfig configures the live-reload development server.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	BaseDir    string `yaml:"base_dir"`
	LiveReload bool   `yaml:"live_reload"`
}

// ToolsConfig configures how external tools are launched.
type ToolsConfig struct {
	// EnvPassthrough names host variables forwarded to external tools.
	// Everything else is withheld.
	EnvPassthrough []string `yaml:"env_passthrough"`
}

// DefaultConfig returns the configuration of the standard pipeline.
func DefaultConfig() *Config {
	return &Config{
		Preset:      PresetStandard,
		Output:      "assets",
		CacheDir:    filepath.Join(".assetweaver", "cache"),
		StateDB:     filepath.Join(".assetweaver", "state.db"),
		Concurrency: 4,
		Styles: StylesConfig{
			Entry:    "src/scss/style.scss",
			Dest:     "css",
			Browsers: []string{"last 2 versions"},
			Extname:  ".min.css",
		},
		Scripts: ScriptsConfig{
			Src:     []string{"src/js/*.js"},
			Dest:    "js",
			Bundle:  "bundle.js",
			Extname: ".min.js",
		},
		Markup: CopyConfig{
			Src:  []string{"*.html"},
			Dest: ".",
		},
		Images: CopyConfig{
			Src:  []string{"src/images/*"},
			Dest: "images",
		},
		Fonts: FontsConfig{
			Src:  []string{"src/fonts/*"},
			Dest: "fonts",
		},
		Icons: IconsConfig{
			Src:                []string{"src/images/svg/*.svg"},
			Dest:               "fonts",
			FontName:           "iconfont",
			Formats:            []string{"woff", "woff2"},
			Normalize:          true,
			FontHeight:         1000,
			CenterHorizontally: true,
			StartCodepoint:     "EA01",
			Template:           "src/scss/config/iconfont-template/_iconfont.scss",
			FragmentDest:       "src/scss/config",
			FontPath:           "../fonts/",
			Command:            DefaultIconCommand,
		},
		Lint: LintConfig{
			Src:     []string{"src/scss/**/*.{scss,sass}"},
			Rules:   "sass-lint.yml",
			Command: "npx --no-install stylelint --formatter json",
		},
		Clean: CleanConfig{},
		Watch: WatchConfig{
			Bindings: []WatchBinding{
				{Chain: "styles", Patterns: []string{"src/scss/*"}},
				{Chain: "scripts", Patterns: []string{"src/js/*"}},
				{Chain: "images", Patterns: []string{"src/images/*"}},
				{Chain: "lint", Patterns: []string{"src/scss/**/*.{scss,sass}"}},
				{Chain: "markup", Patterns: []string{"*.html"}},
				{Chain: "fonts", Patterns: []string{"src/fonts/*"}},
			},
		},
		Server: ServerConfig{
			Host:       "localhost",
			Port:       3000,
			BaseDir:    ".",
			LiveReload: true,
		},
		Tools: ToolsConfig{
			EnvPassthrough: []string{"PATH", "HOME"},
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides and the selected preset are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyPreset(cfg.Preset); err != nil {
		return nil, err
	}
	cfg.normalizePaths()
	return cfg, nil
}

// normalizePaths rewrites the single-file settings in the form input
// resolution reports sources ("./src/a.scss" becomes "src/a.scss"), so units
// can find them among their inputs.
func (c *Config) normalizePaths() {
	c.Styles.Entry = core.CleanSource(c.Styles.Entry)
	c.Icons.Template = core.CleanSource(c.Icons.Template)
	c.Lint.Rules = core.CleanSource(c.Lint.Rules)
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("ASSETWEAVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ASSETWEAVER_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ASSETWEAVER_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("ASSETWEAVER_SASS"); v != "" {
		c.Styles.SassBinary = v
	}
	return nil
}

// ApplyPreset switches on the features of the named variant. Presets only
// enable features; they never disable what the config file turned on.
func (c *Config) ApplyPreset(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetStandard:
		c.Preset = PresetStandard
	case PresetFonts:
		c.Preset = PresetFonts
		c.Fonts.Enabled = true
	case PresetClean:
		c.Preset = PresetClean
		c.Clean.Enabled = true
	default:
		return fmt.Errorf("unknown preset %q (valid: %s)", name, strings.Join(ValidPresets, ", "))
	}
	if c.Clean.Enabled && len(c.Clean.Paths) == 0 {
		c.Clean.Paths = []string{c.Output}
	}
	return nil
}

// Validate checks the configuration for values no chain can work with. It
// normalizes the single-file paths first.
func (c *Config) Validate() error {
	c.normalizePaths()

	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("output must not be empty")
	}
	if filepath.Clean(c.Output) == "." || filepath.IsAbs(c.Output) {
		return fmt.Errorf("output must be a relative subdirectory (got %q)", c.Output)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1")
	}
	if c.Styles.Entry == "" {
		return fmt.Errorf("styles.entry must not be empty")
	}
	for _, f := range []struct{ key, path string }{
		{"styles.entry", c.Styles.Entry},
		{"icons.template", c.Icons.Template},
		{"lint.rules", c.Lint.Rules},
	} {
		if f.path != "" && (path.IsAbs(f.path) || f.path == ".." || strings.HasPrefix(f.path, "../")) {
			return fmt.Errorf("%s must be relative to the project root (got %q)", f.key, f.path)
		}
	}
	if c.Scripts.Bundle == "" {
		return fmt.Errorf("scripts.bundle must not be empty")
	}
	if c.Icons.FontName == "" {
		return fmt.Errorf("icons.font_name must not be empty")
	}
	if len(c.Icons.Formats) == 0 {
		return fmt.Errorf("icons.formats must list at least one format")
	}
	if _, err := c.Icons.Codepoint(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	for i, b := range c.Watch.Bindings {
		if b.Chain == "" {
			return fmt.Errorf("watch.bindings[%d].chain is required", i)
		}
		if len(b.Patterns) == 0 {
			return fmt.Errorf("watch.bindings[%d].patterns must not be empty", i)
		}
	}
	for _, p := range c.Clean.Paths {
		if filepath.Clean(p) == "." || filepath.IsAbs(p) || strings.HasPrefix(filepath.Clean(p), "..") {
			return fmt.Errorf("refusing to clean %q: must be a relative subdirectory", p)
		}
	}
	return nil
}

// Codepoint parses StartCodepoint ("EA01", "U+EA01" or "0xEA01").
func (ic IconsConfig) Codepoint() (rune, error) {
	raw := strings.TrimSpace(ic.StartCodepoint)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "U+"), "u+")
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if raw == "" {
		return 0, fmt.Errorf("icons.start_codepoint must not be empty")
	}
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid icons.start_codepoint %q: %w", ic.StartCodepoint, err)
	}
	return rune(v), nil
}

// OutputPath joins a chain destination onto the output root.
func (c *Config) OutputPath(dest string) string {
	return filepath.ToSlash(filepath.Join(c.Output, dest))
}
