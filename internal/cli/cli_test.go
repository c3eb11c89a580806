package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bep/godartsass/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"assetweaver/internal/core"
	"assetweaver/internal/dag"
	"assetweaver/internal/iconfont"
	"assetweaver/internal/lint"
	"assetweaver/internal/pipeline"
	"assetweaver/internal/state"
)

type echoSass struct{ err error }

func (e *echoSass) Execute(args godartsass.Args) (godartsass.Result, error) {
	if e.err != nil {
		return godartsass.Result{}, e.err
	}
	return godartsass.Result{CSS: args.Source}, nil
}

type fontGen struct{}

func (fontGen) Generate(_ context.Context, req iconfont.Request) (*core.AssetSet, error) {
	out := &core.AssetSet{}
	for _, format := range req.Formats {
		out.Assets = append(out.Assets, core.Asset{Path: req.FontName + "." + format, Content: []byte(format)})
	}
	return out, nil
}

type stubLinter struct{ vs []lint.Violation }

func (s *stubLinter) Lint(context.Context, []string, *lint.Rules) ([]lint.Violation, error) {
	return s.vs, nil
}

type fixture struct {
	t      *testing.T
	root   string
	sass   *echoSass
	linter *stubLinter
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{t: t, root: t.TempDir(), sass: &echoSass{}, linter: &stubLinter{}}
	f.write("index.html", "<html><body>home</body></html>")
	f.write("src/scss/style.scss", ".btn {\n  color: #ff0000;\n}\n")
	f.write("src/scss/config/iconfont-template/_iconfont.scss", "{{range .Glyphs}}${{.Name}}: \"{{.CSSEscape}}\";\n{{end}}")
	f.write("src/js/a.js", "function alpha(value) { return value + 1; }\n")
	f.write("src/js/b.js", "console.log(alpha(41));\n")
	f.write("src/images/logo.png", "png-bytes")
	f.write("src/images/svg/arrow.svg", "<svg/>")
	return f
}

func (f *fixture) write(rel, content string) {
	f.t.Helper()
	full := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(f.t, os.WriteFile(full, []byte(content), 0o644))
}

func (f *fixture) read(rel string) string {
	f.t.Helper()
	b, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(f.t, err)
	return string(b)
}

func (f *fixture) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(rel)))
	return err == nil
}

func (f *fixture) env() Env {
	return Env{
		Stdout: &f.stdout,
		Stderr: &f.stderr,
		Logger: zap.NewNop(),
		Pipeline: pipeline.Options{
			Transpiler:    f.sass,
			IconGenerator: fontGen{},
			Linter:        f.linter,
		},
	}
}

func (f *fixture) run(ctx context.Context, args ...string) int {
	f.stdout.Reset()
	f.stderr.Reset()
	return Run(ctx, append([]string{"--workdir", f.root}, args...), f.env())
}

func TestRun_DefaultTaskBuildsEverything(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, ExitSuccess, f.run(context.Background()), f.stderr.String())
	for _, rel := range []string{
		"assets/index.html",
		"assets/css/style.min.css",
		"assets/js/bundle.min.js",
		"assets/images/logo.png",
		"assets/fonts/iconfont.woff",
		"assets/fonts/iconfont.woff2",
		"src/scss/config/_iconfont.scss",
	} {
		assert.True(t, f.exists(rel), "missing %s", rel)
	}
	assert.True(t, f.exists(".assetweaver/state.db"))
}

func TestRun_ChainFailureExitsOne(t *testing.T) {
	f := newFixture(t)
	f.sass.err = errors.New("Undefined variable")

	assert.Equal(t, ExitGraphFailure, f.run(context.Background()))
	assert.Contains(t, f.stderr.String(), "styles")
	// Siblings still ran.
	assert.True(t, f.exists("assets/js/bundle.min.js"))
}

func TestRun_TraceIsWrittenAndStable(t *testing.T) {
	f := newFixture(t)
	f.sass.err = errors.New("boom")

	require.Equal(t, ExitGraphFailure, f.run(context.Background(), "build", "--trace", "out/trace.json"))
	first := f.read("out/trace.json")
	assert.Contains(t, first, `"kind":"ChainFailed","chain":"styles"`)

	require.Equal(t, ExitGraphFailure, f.run(context.Background(), "build", "--trace", "out/trace.json"))
	assert.Equal(t, first, f.read("out/trace.json"))
}

func TestRun_BuildRemovesStaleOutput(t *testing.T) {
	f := newFixture(t)
	f.write("assets/old.css", "stale")

	require.Equal(t, ExitSuccess, f.run(context.Background(), "build"), f.stderr.String())
	assert.False(t, f.exists("assets/old.css"))
	assert.True(t, f.exists("assets/css/style.min.css"))
}

func TestRun_LintExitCodeFollowsErrorSeverity(t *testing.T) {
	f := newFixture(t)
	f.linter.vs = []lint.Violation{{File: "src/scss/style.scss", Line: 2, Column: 3, Rule: "color-hex-length", Severity: lint.SeverityWarning, Message: "expected short hex"}}

	require.Equal(t, ExitSuccess, f.run(context.Background(), "lint"), f.stderr.String())
	assert.Contains(t, f.stdout.String(), "expected short hex")

	f.linter.vs[0].Severity = lint.SeverityError
	f.write("src/scss/style.scss", ".btn { color: #f00000; }\n")
	assert.Equal(t, ExitGraphFailure, f.run(context.Background(), "lint"))
}

func TestRun_IconsOnly(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, ExitSuccess, f.run(context.Background(), "icons"), f.stderr.String())
	assert.True(t, f.exists("assets/fonts/iconfont.woff2"))
	assert.Equal(t, "$arrow: \"\\ea01\";\n", f.read("src/scss/config/_iconfont.scss"))
	assert.False(t, f.exists("assets/css/style.min.css"))
}

func TestRun_InvocationErrors(t *testing.T) {
	f := newFixture(t)
	cases := map[string][]string{
		"unknown flag":    {"--frobnicate"},
		"positional args": {"styles"},
		"unknown preset":  {"--preset", "deluxe"},
		"bad port":        {"watch", "--port", "70000"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, ExitInvalidInvocation, f.run(context.Background(), args...))
		})
	}

	code := Run(context.Background(), []string{"--workdir", filepath.Join(f.root, "nope")}, f.env())
	assert.Equal(t, ExitInvalidInvocation, code)
}

func TestRun_ConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unparsable":     "styles: [\n",
		"invalid values": "concurrency: 0\n",
		"bad preset":     "preset: deluxe\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.write("assetweaver.yml", yml)
			assert.Equal(t, ExitConfigError, f.run(context.Background()))
		})
	}
}

func TestRun_ConfigFileAndPresetFlag(t *testing.T) {
	f := newFixture(t)
	f.write("custom.yml", "output: public\n")
	f.write("src/fonts/brand.woff2", "font")

	require.Equal(t, ExitSuccess, f.run(context.Background(), "--config", "custom.yml", "--preset", "fonts"), f.stderr.String())
	assert.True(t, f.exists("public/fonts/brand.woff2"))
	assert.False(t, f.exists("assets"))
}

func TestRun_StatusShowsLastRun(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, ExitSuccess, f.run(context.Background(), "status"))
	assert.Contains(t, f.stdout.String(), "no builds recorded yet")

	f.sass.err = errors.New("boom")
	require.Equal(t, ExitGraphFailure, f.run(context.Background()))

	require.Equal(t, ExitSuccess, f.run(context.Background(), "status", "--history", "5"))
	out := f.stdout.String()
	assert.Contains(t, out, "default (incremental)")
	assert.Contains(t, out, string(state.RunFailed))
	assert.Contains(t, out, "chain styles: ChainFailed")
	assert.Contains(t, out, string(dag.ChainFailed))
	assert.Contains(t, out, "Recent runs")
}

func TestRun_TasksListsComposition(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, ExitSuccess, f.run(context.Background(), "tasks"))
	out := f.stdout.String()
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "default"), out)
	assert.Contains(t, out, "parallel(series(icons, styles), markup, scripts, images)")
	assert.Contains(t, out, "series(clean, parallel(")
	assert.NotContains(t, out, "fonts")
}

func TestRun_WatchRebuildsChangedChain(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- Run(ctx, []string{"--workdir", f.root, "watch", "--no-serve"}, Env{
			Stdout:   &bytes.Buffer{},
			Stderr:   &bytes.Buffer{},
			Logger:   zap.NewNop(),
			Pipeline: f.env().Pipeline,
		})
	}()

	require.Eventually(t, func() bool { return f.exists("assets/js/bundle.min.js") }, 10*time.Second, 20*time.Millisecond)

	// The watch is registered after the initial build; keep editing until
	// the rebuild shows up.
	n := 0
	require.Eventually(t, func() bool {
		n++
		f.write("src/js/b.js", fmt.Sprintf("console.log(\"edit-%d\");\n", n))
		return strings.Contains(f.read("assets/js/bundle.min.js"), "edit-")
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, ExitSuccess, code)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestRun_WatchServesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int, 1)
	go func() {
		done <- Run(ctx, []string{"--workdir", f.root, "watch", "--port", "0"}, Env{
			Stdout:   &bytes.Buffer{},
			Stderr:   &bytes.Buffer{},
			Logger:   zap.NewNop(),
			Pipeline: f.env().Pipeline,
		})
	}()

	require.Eventually(t, func() bool { return f.exists("assets/index.html") }, 10*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case code := <-done:
		assert.Equal(t, ExitSuccess, code)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"invocation", invalidInvocationf("bad"), ExitInvalidInvocation},
		{"chains failed", fmt.Errorf("%w: styles", ErrChainsFailed), ExitGraphFailure},
		{"chain error", &core.ChainError{Chain: "styles", Err: errors.New("boom")}, ExitGraphFailure},
		{"config", &state.ConfigError{Err: errors.New("bad")}, ExitConfigError},
		{"graph", fmt.Errorf("compile: %w", &dag.GraphError{Kind: dag.ErrCycleFound}), ExitConfigError},
		{"cancelled", context.Canceled, ExitInternalError},
		{"other", errors.New("disk on fire"), ExitInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestWriteTrace_SkipsNilResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, writeTrace(path, nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
