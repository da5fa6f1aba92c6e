package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/dreamware/liveserver/internal/workspace"
)

// ReloadPath is the websocket endpoint browsers listen on for reloads.
const ReloadPath = "/__livereload"

const reloadScript = `<script>(function(){var s=new WebSocket((location.protocol==="https:"?"wss://":"ws://")+location.host+"` + ReloadPath + `");s.onmessage=function(){location.reload();};})();</script>`

// Server serves one workspace on an already bound listener until ctx is
// cancelled or serving fails.
type Server interface {
	Serve(ctx context.Context, ln net.Listener, ws *workspace.Workspace) error
}

// StaticServer serves workspace files, reading each through the workspace's
// file access so that eager workspaces show unsaved edits.
type StaticServer struct {
	logger *slog.Logger
}

// NewStaticServer creates a static preview server.
func NewStaticServer(logger *slog.Logger) *StaticServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticServer{logger: logger}
}

// Serve implements Server.
func (s *StaticServer) Serve(ctx context.Context, ln net.Listener, ws *workspace.Workspace) error {
	st := newSite(ws, s.logger.With("workspace", ws.Name))

	httpSrv := &http.Server{
		Handler:           st.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// The hub lives exactly as long as this call, so that a restarted site
	// on a new listener is the only consumer of the workspace signal.
	siteCtx, stopSite := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		st.hub.run(siteCtx, ws.Signal())
	}()
	defer func() {
		stopSite()
		<-hubDone
		st.hub.closeAll()
	}()

	errCh := make(chan error, 1)
	go func() {
		st.logger.Info("preview server listening", "addr", ln.Addr().String(), "root", ws.Root)
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st.hub.closeAll()
		_ = httpSrv.Shutdown(shutdownCtx)
		return nil
	}
}

// site is the HTTP surface of one workspace.
type site struct {
	ws     *workspace.Workspace
	hub    *reloadHub
	router *httprouter.Router
	logger *slog.Logger
}

func newSite(ws *workspace.Workspace, logger *slog.Logger) *site {
	if logger == nil {
		logger = slog.Default()
	}
	st := &site{
		ws:     ws,
		hub:    newReloadHub(logger),
		router: httprouter.New(),
		logger: logger,
	}
	st.router.POST("/ping", st.handlePing)
	st.router.GET(ReloadPath, st.handleReload)
	st.router.NotFound = http.HandlerFunc(st.handleFile)
	st.router.RedirectTrailingSlash = false
	return st
}

func (st *site) handlePing(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

// resolve maps a URL path onto a file under the workspace root. Paths that
// would leave the root are rejected.
func (st *site) resolve(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	full := filepath.Join(st.ws.Root, filepath.FromSlash(clean))
	if !st.ws.Contains(full) {
		return "", false
	}
	return full, true
}

func (st *site) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	full, ok := st.resolve(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	disk := workspace.DiskFiles{}
	if names, err := disk.ReadDir(full); err == nil {
		index := filepath.Join(full, "index.html")
		if data, err := st.ws.Files(index).ReadFile(index); err == nil {
			st.write(w, index, data)
			return
		}
		st.listing(w, r.URL.Path, names)
		return
	}

	data, err := st.ws.Files(full).ReadFile(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	st.write(w, full, data)
}

func (st *site) write(w http.ResponseWriter, name string, data []byte) {
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if strings.HasPrefix(ctype, "text/html") {
		data = injectReload(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// injectReload puts the reload script before </body>, or at the end when
// the page has no body tag.
func injectReload(page []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if i < 0 {
		return append(page, reloadScript...)
	}
	out := make([]byte, 0, len(page)+len(reloadScript))
	out = append(out, page[:i]...)
	out = append(out, reloadScript...)
	return append(out, page[i:]...)
}

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Dir}}</title></head>
<body><h1>{{.Dir}}</h1><ul>
{{range .Names}}<li><a href="{{$.Base}}{{.}}">{{.}}</a></li>
{{end}}</ul></body></html>
`))

func (st *site) listing(w http.ResponseWriter, dir string, names []string) {
	base := dir
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	var buf bytes.Buffer
	err := listingTemplate.Execute(&buf, struct {
		Dir   string
		Base  string
		Names []string
	}{dir, base, names})
	if err != nil {
		st.logger.Error("render listing", "err", err)
		http.Error(w, fmt.Sprintf("render listing: %v", err), http.StatusInternalServerError)
		return
	}
	st.write(w, "listing.html", buf.Bytes())
}
