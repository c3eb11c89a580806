package transform

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"assetweaver/internal/core"
)

// latestEngines is the newest major version of each browser that
// "last N versions" counts back from.
var latestEngines = []api.Engine{
	{Name: api.EngineChrome, Version: "131"},
	{Name: api.EngineEdge, Version: "131"},
	{Name: api.EngineFirefox, Version: "133"},
	{Name: api.EngineIOS, Version: "18"},
	{Name: api.EngineOpera, Version: "115"},
	{Name: api.EngineSafari, Version: "18"},
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ff":      api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"ios_saf": api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseBrowsers turns browserslist-style queries into esbuild engine
// targets. Supported queries are "last N versions", "defaults" (same as
// "last 2 versions") and explicit "<browser> <version>" pairs. When a
// browser appears more than once the oldest version wins.
func ParseBrowsers(queries []string) ([]api.Engine, error) {
	oldest := make(map[api.EngineName]string)
	add := func(name api.EngineName, version string) {
		if cur, ok := oldest[name]; !ok || versionLess(version, cur) {
			oldest[name] = version
		}
	}

	for _, q := range queries {
		q = strings.ToLower(strings.Join(strings.Fields(q), " "))
		switch {
		case q == "":
			continue
		case q == "defaults":
			for _, e := range lastVersions(2) {
				add(e.Name, e.Version)
			}
		case strings.HasPrefix(q, "last ") && strings.HasSuffix(q, " versions"),
			strings.HasPrefix(q, "last ") && strings.HasSuffix(q, " version"):
			fields := strings.Fields(q)
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid browser query %q", q)
			}
			for _, e := range lastVersions(n) {
				add(e.Name, e.Version)
			}
		default:
			fields := strings.Fields(q)
			if len(fields) != 2 {
				return nil, fmt.Errorf("unsupported browser query %q", q)
			}
			name, ok := engineNames[fields[0]]
			if !ok {
				return nil, fmt.Errorf("unknown browser %q in query %q", fields[0], q)
			}
			if _, err := strconv.ParseFloat(fields[1], 64); err != nil {
				return nil, fmt.Errorf("invalid version in browser query %q", q)
			}
			add(name, fields[1])
		}
	}

	out := make([]api.Engine, 0, len(oldest))
	for name, version := range oldest {
		out = append(out, api.Engine{Name: name, Version: version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func lastVersions(n int) []api.Engine {
	out := make([]api.Engine, len(latestEngines))
	for i, e := range latestEngines {
		major, _ := strconv.Atoi(e.Version)
		v := major - (n - 1)
		if v < 1 {
			v = 1
		}
		out[i] = api.Engine{Name: e.Name, Version: strconv.Itoa(v)}
	}
	return out
}

func versionLess(a, b string) bool {
	fa, _ := strconv.ParseFloat(a, 64)
	fb, _ := strconv.ParseFloat(b, 64)
	return fa < fb
}

// Autoprefix adds the vendor prefixes the target browsers need to every
// .css asset. Other assets pass through.
type Autoprefix struct {
	Engines []api.Engine
}

// NewAutoprefix parses the browser queries once.
func NewAutoprefix(browsers []string) (*Autoprefix, error) {
	engines, err := ParseBrowsers(browsers)
	if err != nil {
		return nil, err
	}
	return &Autoprefix{Engines: engines}, nil
}

func (a *Autoprefix) Name() string { return "autoprefix" }

func (a *Autoprefix) Fingerprint() string {
	parts := make([]string, len(a.Engines))
	for i, e := range a.Engines {
		parts[i] = fmt.Sprintf("%d@%s", e.Name, e.Version)
	}
	return strings.Join(parts, ",")
}

func (a *Autoprefix) Apply(ctx context.Context, in *core.AssetSet) (*core.AssetSet, error) {
	return mapExt(ctx, in, ".css", func(asset core.Asset) ([]byte, error) {
		res := api.Transform(string(asset.Content), api.TransformOptions{
			Loader:     api.LoaderCSS,
			Engines:    a.Engines,
			Sourcefile: asset.Path,
		})
		if err := transformError(asset.Path, res.Errors); err != nil {
			return nil, err
		}
		return res.Code, nil
	})
}

// mapExt rewrites the content of every asset with the given extension.
func mapExt(ctx context.Context, in *core.AssetSet, ext string, fn func(core.Asset) ([]byte, error)) (*core.AssetSet, error) {
	out := &core.AssetSet{Assets: make([]core.Asset, 0, in.Len())}
	for _, asset := range in.Assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.EqualFold(asset.Ext(), ext) {
			out.Assets = append(out.Assets, asset)
			continue
		}
		content, err := fn(asset)
		if err != nil {
			return nil, err
		}
		asset.Content = content
		out.Assets = append(out.Assets, asset)
	}
	return out, nil
}

func transformError(file string, msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	m := msgs[0]
	if m.Location != nil {
		return fmt.Errorf("%s:%d:%d: %s", file, m.Location.Line, m.Location.Column, m.Text)
	}
	return fmt.Errorf("%s: %s", file, m.Text)
}
