// Package devserver serves the project over HTTP and pushes reload
// notifications to connected browsers.
package devserver

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SocketPath is the websocket endpoint browsers connect to.
const SocketPath = "/__assetweaver/ws"

const shutdownTimeout = 5 * time.Second

//go:embed static/reload.js
var reloadJS []byte

// Options configure a Server.
type Options struct {
	// Addr is the listen address, host:port.
	Addr string

	// BaseDir is the served directory.
	BaseDir string

	// ProjectRoot resolves the project-relative paths given to InjectCSS.
	// Defaults to BaseDir.
	ProjectRoot string

	LiveReload bool
	Logger     *zap.Logger
}

// Server is the live-reload development server.
type Server struct {
	opts    Options
	hub     *Hub
	files   http.FileSystem
	handler http.Handler
	logger  *zap.Logger
}

// New builds a server for opts. Nothing listens until ListenAndServe.
func New(opts Options) (*Server, error) {
	if opts.BaseDir == "" {
		return nil, errors.New("base dir is required")
	}
	base, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base dir: %w", err)
	}
	opts.BaseDir = base
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = base
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		opts:   opts,
		hub:    NewHub(opts.Logger),
		files:  http.Dir(base),
		logger: opts.Logger,
	}

	mux := http.NewServeMux()
	if opts.LiveReload {
		mux.Handle(SocketPath, s.hub)
		mux.HandleFunc(ReloadScriptPath, serveReloadJS)
	}
	mux.HandleFunc("/", s.serveFile)
	s.handler = mux
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the broadcast hub.
func (s *Server) Hub() *Hub { return s.hub }

// Reload tells every browser to reload the page.
func (s *Server) Reload() {
	if !s.opts.LiveReload {
		return
	}
	s.logger.Info("Reloading browsers", zap.Int("clients", s.hub.Clients()))
	s.hub.Broadcast(Message{Type: MessageReload})
}

// InjectCSS tells every browser to swap the given stylesheets in place.
// Stylesheets outside the served directory cannot be addressed by URL and
// fall back to a full reload.
func (s *Server) InjectCSS(paths []string) {
	if !s.opts.LiveReload || len(paths) == 0 {
		return
	}
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		u, ok := s.urlPath(p)
		if !ok {
			s.Reload()
			return
		}
		urls = append(urls, u)
	}
	s.logger.Info("Injecting stylesheets", zap.Strings("paths", urls), zap.Int("clients", s.hub.Clients()))
	s.hub.Broadcast(Message{Type: MessageCSS, Paths: urls})
}

func (s *Server) urlPath(projectRel string) (string, bool) {
	abs := filepath.Join(s.opts.ProjectRoot, filepath.FromSlash(projectRel))
	rel, err := filepath.Rel(s.opts.BaseDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then disconnects browsers and shuts
// the HTTP server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Dev server listening",
		zap.String("url", "http://"+ln.Addr().String()),
		zap.String("base_dir", s.opts.BaseDir))

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dev server: %w", err)
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down dev server: %w", err)
	}
	<-errCh
	s.logger.Debug("Dev server stopped")
	return nil
}

func serveReloadJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(reloadJS)
}

// serveFile serves the base directory. HTML pages get the reload client.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}
	if !s.opts.LiveReload || !isHTML(name) {
		http.FileServer(s.files).ServeHTTP(w, r)
		return
	}

	f, err := s.files.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.FileServer(s.files).ServeHTTP(w, r)
		return
	}
	body, err := io.ReadAll(f)
	if err != nil {
		s.logger.Warn("Reading page failed", zap.String("path", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(InjectReloadScript(body)))
}

func isHTML(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}
