package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tphummel/service_report/internal/db"
	"github.com/tphummel/service_report/internal/export"
	"github.com/tphummel/service_report/internal/gallery"
	"github.com/tphummel/service_report/internal/metrics"
	"github.com/tphummel/service_report/internal/middleware"
	"github.com/tphummel/service_report/internal/models"
	"github.com/tphummel/service_report/internal/notify"
	"github.com/tphummel/service_report/internal/report"
	"github.com/tphummel/service_report/internal/warranty"
)

// Exporter renders an assembled page to JPEG bytes.
type Exporter interface {
	Export(ctx context.Context, p report.Page) ([]byte, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	DB         *db.DB
	Catalog    *report.Catalog
	Monitor    *warranty.Monitor
	Dispatcher *notify.Dispatcher
	Exporter   Exporter
	Logger     *slog.Logger

	Version      string
	Commit       string
	ShareBaseURL string
	Location     *time.Location

	// Now defaults to time.Now.
	Now func() time.Time
}

// Routes returns the service mux. Every route is wrapped with the metrics
// middleware; the send action additionally requires notifyToken when set.
func (h *Handler) Routes(notifyToken string) *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, next http.Handler) {
		mux.Handle(pattern, metrics.Middleware(pattern, next))
	}

	// Ops
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /openapi.yaml", OpenAPISpec)
	mux.HandleFunc("GET /docs", Docs)

	// Pages
	handle("GET /{$}", http.HandlerFunc(h.Index))
	handle("GET /reports/{id}", http.HandlerFunc(h.ReportPage))
	handle("GET /reports/{id}/photos/{index}", http.HandlerFunc(h.PhotoPage))
	handle("GET /reports/{id}/export.jpg", http.HandlerFunc(h.Export))

	// JSON API
	handle("GET /api/v1/reports", http.HandlerFunc(h.ListReports))
	handle("GET /api/v1/reports/{id}", http.HandlerFunc(h.GetReport))
	handle("GET /api/v1/reports/{id}/warranty", http.HandlerFunc(h.GetWarranty))
	handle("GET /api/v1/reports/{id}/message", http.HandlerFunc(h.GetMessage))
	handle("POST /api/v1/reports/{id}/notify", middleware.Auth(notifyToken, http.HandlerFunc(h.Notify)))
	handle("GET /api/v1/reports/{id}/photos/{index}", http.HandlerFunc(h.GetPhoto))
	handle("GET /api/v1/reports/{id}/share", http.HandlerFunc(h.GetShare))
	handle("GET /api/v1/dispatches", http.HandlerFunc(h.ListDispatches))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) now() time.Time {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	t := now()
	if h.Location != nil {
		t = t.In(h.Location)
	}
	return t
}

// lookup resolves the {id} path value. It writes a 404 and returns false
// when the report does not exist.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (models.Report, bool) {
	rep, err := h.Catalog.Get(r.PathValue("id"))
	if errors.Is(err, report.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return models.Report{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get report")
		return models.Report{}, false
	}
	return rep, true
}

// snapshot returns the monitor's memoized evaluation for rep, evaluating
// directly when the report is not tracked.
func (h *Handler) snapshot(rep models.Report, now time.Time) warranty.Snapshot {
	if h.Monitor != nil {
		if s, ok := h.Monitor.Snapshot(rep.Service.ID); ok {
			return s
		}
	}
	return warranty.NewWindow(rep.Service.Start, rep.WarrantyMonths).Evaluate(now)
}

// dispatchFor returns the recorded dispatch for serviceID, or nil.
func (h *Handler) dispatchFor(serviceID string) (*models.Dispatch, error) {
	d, err := h.DB.GetDispatchByServiceID(serviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (h *Handler) page(rep models.Report) (report.Page, error) {
	d, err := h.dispatchFor(rep.Service.ID)
	if err != nil {
		return report.Page{}, err
	}
	now := h.now()
	return report.Assemble(rep, h.snapshot(rep, now), report.Options{
		Now:          now,
		ShareBaseURL: h.ShareBaseURL,
		Dispatch:     d,
	}), nil
}

// Health handles GET /healthz. No auth required.
// Returns 503 if the dispatch log is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
		"commit":  h.Commit,
	})
}

// Index handles GET / by redirecting to the first configured report.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ids := h.Catalog.IDs()
	if len(ids) == 0 {
		writeError(w, http.StatusNotFound, "no reports configured")
		return
	}
	http.Redirect(w, r, report.ShareURL("", ids[0]), http.StatusFound)
}

type reportSummary struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Location      string          `json:"location"`
	Client        string          `json:"client"`
	Status        warranty.Status `json:"status"`
	DaysRemaining int             `json:"days_remaining"`
}

// ListReports handles GET /api/v1/reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	out := []reportSummary{}
	for _, rep := range h.Catalog.Reports() {
		s := h.snapshot(rep, now)
		out = append(out, reportSummary{
			ID:            rep.Service.ID,
			Date:          rep.Service.Date,
			Location:      rep.Service.Location,
			Client:        rep.Client.Name,
			Status:        s.Status,
			DaysRemaining: s.DaysRemaining,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListDispatches handles GET /api/v1/dispatches, the reminders recorded by
// this process, oldest first.
func (h *Handler) ListDispatches(w http.ResponseWriter, r *http.Request) {
	list, err := h.DB.ListDispatches()
	if err != nil {
		h.logger().Error("list dispatches", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list dispatches")
		return
	}
	if list == nil {
		list = []*models.Dispatch{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetReport handles GET /api/v1/reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p, err := h.page(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to assemble report")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type warrantyResponse struct {
	warranty.Snapshot
	Label          string `json:"label"`
	DisplayDays    int    `json:"display_days"`
	StartDate      string `json:"start_date"`
	ExpirationDate string `json:"expiration_date"`
	DurationMonths int    `json:"duration_months"`
}

// GetWarranty handles GET /api/v1/reports/{id}/warranty with an optional
// ?at=RFC3339 evaluation instant.
func (h *Handler) GetWarranty(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var snap warranty.Snapshot
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be an RFC3339 timestamp")
			return
		}
		snap = warranty.NewWindow(rep.Service.Start, rep.WarrantyMonths).Evaluate(t)
	} else {
		snap = h.snapshot(rep, h.now())
	}

	writeJSON(w, http.StatusOK, warrantyResponse{
		Snapshot:       snap,
		Label:          snap.Status.Label(),
		DisplayDays:    snap.DisplayDays(),
		StartDate:      warranty.FormatDate(snap.Start),
		ExpirationDate: warranty.FormatDate(snap.Expiration),
		DurationMonths: rep.WarrantyMonths,
	})
}

// GetMessage handles GET /api/v1/reports/{id}/message.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id := rep.Service.ID
	subject := notify.Subject(id)
	body := notify.RenderMessage(id, rep.Service.Start, rep.WarrantyMonths)
	writeJSON(w, http.StatusOK, map[string]any{
		"recipients": rep.Reminder.Recipients,
		"cc":         rep.Reminder.CC,
		"subject":    subject,
		"message":    body,
		"mailto_uri": notify.MailtoURI(rep.Reminder.Recipients, rep.Reminder.CC, subject, body),
	})
}

// Notify handles POST /api/v1/reports/{id}/notify: the simulated send.
// Responds 201 on a new dispatch and 200 when the service was already sent.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}

	res, err := h.Dispatcher.Send(r.Context(), notify.Request{
		ServiceID:      rep.Service.ID,
		Start:          rep.Service.Start,
		DurationMonths: rep.WarrantyMonths,
		Recipients:     rep.Reminder.Recipients,
		CC:             rep.Reminder.CC,
	})
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.ObserveNotification("cancelled")
		writeError(w, http.StatusServiceUnavailable, "send cancelled")
		return
	case err != nil:
		metrics.ObserveNotification("error")
		h.logger().Error("notify failed", "service_id", rep.Service.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send notification")
		return
	}

	if res.AlreadySent {
		metrics.ObserveNotification("already_sent")
		writeJSON(w, http.StatusOK, res)
		return
	}
	metrics.ObserveNotification("sent")
	writeJSON(w, http.StatusCreated, res)
}

// viewerFor builds a lightbox viewer opened at the {index} path value and
// applies the ?zoom=1 and ?key= query parameters.
func viewerFor(rep models.Report, r *http.Request) (*gallery.Viewer, error) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return nil, gallery.ErrIndexOutOfRange
	}
	v := gallery.NewViewer(rep.Gallery)
	if err := v.OpenAt(idx); err != nil {
		return nil, err
	}
	q := r.URL.Query()
	if q.Get("zoom") == "1" {
		v.ToggleZoom()
	}
	if key := q.Get("key"); key != "" {
		v.Key(key)
	}
	return v, nil
}

// GetPhoto handles GET /api/v1/reports/{id}/photos/{index}.
func (h *Handler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	v, err := viewerFor(rep, r)
	if err != nil {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	writeJSON(w, http.StatusOK, v.State())
}

// GetShare handles GET /api/v1/reports/{id}/share.
func (h *Handler) GetShare(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	share := report.ShareURL(h.ShareBaseURL, rep.Service.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"url":         share,
		"qr_code_url": report.QRCodeURL(share),
	})
}

// Export handles GET /reports/{id}/export.jpg. When an image cannot be
// embedded nothing is returned but the alert text.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p, err := h.page(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to assemble report")
		return
	}

	out, err := h.Exporter.Export(r.Context(), p)
	if errors.Is(err, export.ErrImageUnavailable) {
		metrics.ObserveExport("image_unavailable")
		h.logger().Warn("export failed", "service_id", rep.Service.ID, "error", err)
		writeError(w, http.StatusBadGateway, export.Alert)
		return
	}
	if err != nil {
		metrics.ObserveExport("error")
		h.logger().Error("export failed", "service_id", rep.Service.ID, "error", err)
		writeError(w, http.StatusInternalServerError, export.Alert)
		return
	}

	metrics.ObserveExport("ok")
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(rep.Service.ID)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
