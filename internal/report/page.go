package report

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tphummel/service_report/internal/models"
	"github.com/tphummel/service_report/internal/notify"
	"github.com/tphummel/service_report/internal/warranty"
)

// ReminderIntervalDays is the spacing between warranty checks shown in the
// notification panel.
const ReminderIntervalDays = 30

// Reference conductivities (W/mK) the installed compound is compared against.
var thermalReferences = []ThermalBar{
	{Name: "Padrão (Cinza)", Value: 1.5},
	{Name: "Prata (Comum)", Value: 5.0},
}

// Page is everything the report view needs, derived from one Report at one
// instant.
type Page struct {
	Report         models.Report    `json:"report"`
	Accessories    []string         `json:"accessories"`
	ClientInitial  string           `json:"client_initial"`
	Links          Links            `json:"links"`
	Thermal        []ThermalBar     `json:"thermal_comparison"`
	Photos         []Photo          `json:"photos"`
	Warranty       WarrantyView     `json:"warranty"`
	Notification   NotificationView `json:"notification"`
	GeneratedOn    string           `json:"generated_on"`
	ExportPath     string           `json:"export_path"`
	GeneratedAt    time.Time        `json:"generated_at"`
	IntervalDays   int              `json:"reminder_interval_days"`
	NextReminderAt time.Time        `json:"next_reminder_at"`
}

// Links are the derived contact and sharing URLs.
type Links struct {
	ProviderMailto   string `json:"provider_mailto,omitempty"`
	ProviderWhatsApp string `json:"provider_whatsapp,omitempty"`
	ClientWhatsApp   string `json:"client_whatsapp,omitempty"`
	Share            string `json:"share"`
	ShareQRCode      string `json:"share_qr_code"`
}

// ThermalBar is one bar of the conductivity comparison. Percent is relative
// to the largest value.
type ThermalBar struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Percent   float64 `json:"percent"`
	Highlight bool    `json:"highlight"`
}

// Photo is one gallery entry.
type Photo struct {
	Index    int    `json:"index"`
	URL      string `json:"url"`
	ProxyURL string `json:"proxy_url"`
	Path     string `json:"path"`
}

// WarrantyView is the warranty widget.
type WarrantyView struct {
	warranty.Snapshot
	Label          string `json:"label"`
	DisplayDays    int    `json:"display_days"`
	StartDate      string `json:"start_date"`
	ExpirationDate string `json:"expiration_date"`
	ActionRequired bool   `json:"action_required"`
}

// NotificationView is the notification panel.
type NotificationView struct {
	Recipients   []string         `json:"recipients"`
	CC           string           `json:"cc"`
	NextCheck    string           `json:"next_check"`
	Subject      string           `json:"subject"`
	Message      string           `json:"message"`
	MailtoURI    string           `json:"mailto_uri"`
	Dispatch     *models.Dispatch `json:"dispatch,omitempty"`
	DispatchedAt string           `json:"dispatched_at,omitempty"`
}

// Options carries the per-request inputs of Assemble.
type Options struct {
	Now          time.Time
	ShareBaseURL string
	Dispatch     *models.Dispatch
}

// Assemble builds the page for r. snap must come from the window of r; it is
// passed in so callers can reuse a memoized evaluation.
func Assemble(r models.Report, snap warranty.Snapshot, opts Options) Page {
	now := opts.Now
	id := r.Service.ID
	base := "/reports/" + url.PathEscape(id)

	p := Page{
		Report:        r,
		Accessories:   r.Device.Accessories(),
		ClientInitial: initial(r.Client.Name),
		Thermal:       thermalComparison(r.Thermal),
		GeneratedOn:   warranty.FormatDate(now),
		GeneratedAt:   now,
		ExportPath:    base + "/export.jpg",
		IntervalDays:  ReminderIntervalDays,
	}

	share := ShareURL(opts.ShareBaseURL, id)
	p.Links = Links{Share: share, ShareQRCode: QRCodeURL(share)}
	if r.Provider.Email != "" {
		p.Links.ProviderMailto = "mailto:" + r.Provider.Email
	}
	if r.Provider.WhatsApp != "" {
		p.Links.ProviderWhatsApp = WhatsAppURL(r.Provider.WhatsApp)
	}
	if r.Client.WhatsApp != "" {
		p.Links.ClientWhatsApp = WhatsAppURL(r.Client.WhatsApp)
	}

	for i, src := range r.Gallery {
		p.Photos = append(p.Photos, Photo{
			Index:    i,
			URL:      src,
			ProxyURL: ProxyURL(src),
			Path:     base + "/photos/" + strconv.Itoa(i),
		})
	}

	p.Warranty = WarrantyView{
		Snapshot:       snap,
		Label:          snap.Status.Label(),
		DisplayDays:    snap.DisplayDays(),
		StartDate:      warranty.FormatDate(r.Service.Start),
		ExpirationDate: warranty.FormatDate(snap.Expiration),
		ActionRequired: snap.Status == warranty.StatusWarning,
	}

	next := now.AddDate(0, 0, ReminderIntervalDays)
	p.NextReminderAt = next
	subject := notify.Subject(id)
	message := notify.RenderMessage(id, r.Service.Start, r.WarrantyMonths)
	p.Notification = NotificationView{
		Recipients: r.Reminder.Recipients,
		CC:         r.Reminder.CC,
		NextCheck:  warranty.FormatDate(next),
		Subject:    subject,
		Message:    message,
		MailtoURI:  notify.MailtoURI(r.Reminder.Recipients, r.Reminder.CC, subject, message),
		Dispatch:   opts.Dispatch,
	}
	if opts.Dispatch != nil {
		p.Notification.DispatchedAt = opts.Dispatch.DispatchedAt.In(now.Location()).Format("15:04:05")
	}
	return p
}

func thermalComparison(t models.ThermalSpecs) []ThermalBar {
	bars := append([]ThermalBar(nil), thermalReferences...)
	name := "Alta Perf."
	if f := strings.Fields(t.Name); len(f) > 0 {
		name += " (" + f[0] + ")"
	}
	bars = append(bars, ThermalBar{Name: name, Value: t.Conductivity, Highlight: true})

	top := 0.0
	for _, b := range bars {
		top = math.Max(top, b.Value)
	}
	if top > 0 {
		for i := range bars {
			bars[i].Percent = bars[i].Value / top * 100
		}
	}
	return bars
}

func initial(name string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
	if r == utf8.RuneError {
		return ""
	}
	return strings.ToUpper(string(r))
}
