package dashboard

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/dreamware/liveserver/internal/cluster"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

type pageData struct {
	Entries []cluster.PortEntry
}

// handleIndex renders the current registry; the page script then follows
// /ws for live updates.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, pageData{Entries: s.registry.PortEntries()}); err != nil {
		s.logger.Error("failed to render dashboard", "err", err)
	}
}
