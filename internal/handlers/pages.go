package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/tphummel/service_report/internal/gallery"
	"github.com/tphummel/service_report/internal/models"
	"github.com/tphummel/service_report/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageFuncs = template.FuncMap{
	"pct":  func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"join": strings.Join,
	"checklist": func(status string) string {
		if status == "clean" {
			return "Limpo"
		}
		return status
	},
	"inc": func(i int) int { return i + 1 },
}

var (
	reportTmpl = template.Must(template.New("report.html").Funcs(pageFuncs).ParseFS(templateFS, "templates/layout.html", "templates/report.html"))
	photoTmpl  = template.Must(template.New("photo.html").Funcs(pageFuncs).ParseFS(templateFS, "templates/layout.html", "templates/photo.html"))
)

// render executes t into a buffer first so a template error never leaves a
// half-written page.
func render(w http.ResponseWriter, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ReportPage handles GET /reports/{id}.
func (h *Handler) ReportPage(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p, err := h.page(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to assemble report")
		return
	}
	render(w, reportTmpl, p)
}

type photoPage struct {
	Report models.Report
	State  gallery.State
	Base   string
}

// PhotoPage handles GET /reports/{id}/photos/{index}, the lightbox view.
func (h *Handler) PhotoPage(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	v, err := viewerFor(rep, r)
	if err != nil {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	s := v.State()
	if !s.Open {
		// Escape closes the lightbox and returns to the gallery.
		http.Redirect(w, r, report.ShareURL("", rep.Service.ID)+"#gallery", http.StatusSeeOther)
		return
	}
	render(w, photoTmpl, photoPage{
		Report: rep,
		State:  s,
		Base:   report.ShareURL("", rep.Service.ID),
	})
}
