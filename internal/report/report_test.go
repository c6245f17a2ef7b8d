package report_test

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/tphummel/service_report/internal/models"
	"github.com/tphummel/service_report/internal/notify"
	"github.com/tphummel/service_report/internal/report"
	"github.com/tphummel/service_report/internal/warranty"
)

const minimalReport = `
reports:
  - start_at: "2025-11-28 11:00"
    warranty_months: 10
    service: {id: SRV-1, date: hoje, time: "11:00", location: Lisboa}
    client: {name: "  josé", whatsapp: "+55 38 9212-0436"}
    reminder:
      recipients: [a@example.com]
`

func TestDefault(t *testing.T) {
	c, err := report.Default(time.UTC)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if diff := cmp.Diff([]string{"SRV-2025-11-28-001"}, c.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}

	r, err := c.Get("SRV-2025-11-28-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := time.Date(2025, 11, 28, 11, 0, 0, 0, time.UTC); !r.Service.Start.Equal(want) {
		t.Errorf("Start: got %v, want %v", r.Service.Start, want)
	}
	if r.WarrantyMonths != 10 {
		t.Errorf("WarrantyMonths: got %d, want 10", r.WarrantyMonths)
	}
	if len(r.Gallery) != 7 {
		t.Errorf("Gallery: got %d images, want 7", len(r.Gallery))
	}
	if r.Thermal.Conductivity != 12 || r.Thermal.TempRange != "-160°C / +280°C" {
		t.Errorf("Thermal: got %+v", r.Thermal)
	}
	if r.Device.Firmware != "9.00" {
		t.Errorf("Firmware: got %q, want 9.00", r.Device.Firmware)
	}
}

func TestParse_StartInLocation(t *testing.T) {
	lisbon := time.FixedZone("WET", 0)
	brt := time.FixedZone("BRT", -3*60*60)

	c, err := report.Parse([]byte(minimalReport), brt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r, _ := c.Get("SRV-1")
	if r.Service.Start.Location() != brt {
		t.Errorf("location: got %v, want BRT", r.Service.Start.Location())
	}
	if r.Service.Start.Hour() != 11 {
		t.Errorf("hour: got %d, want 11", r.Service.Start.Hour())
	}

	withZone := strings.Replace(minimalReport, `"2025-11-28 11:00"`, `"2025-11-28T11:00:00Z"`, 1)
	c, err = report.Parse([]byte(withZone), lisbon)
	if err != nil {
		t.Fatalf("Parse RFC3339: %v", err)
	}
	r, _ = c.Get("SRV-1")
	if want := time.Date(2025, 11, 28, 11, 0, 0, 0, time.UTC); !r.Service.Start.Equal(want) {
		t.Errorf("Start: got %v, want %v", r.Service.Start, want)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
	}{
		{"missing id", "id: SRV-1", "id: ''"},
		{"bad start", `"2025-11-28 11:00"`, `"28/11/2025"`},
		{"zero months", "warranty_months: 10", "warranty_months: 0"},
		{"bad recipient", "[a@example.com]", "[not-an-email]"},
		{"no recipients", "[a@example.com]", "[]"},
		{"bad yaml", "reports:", "reports: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := strings.Replace(minimalReport, tt.old, tt.new, 1)
			if _, err := report.Parse([]byte(raw), time.UTC); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestParse_StripsDisplayNames(t *testing.T) {
	raw := strings.Replace(minimalReport, "[a@example.com]", `["Luiz Técnico <a@example.com>", b@example.com]`, 1)
	raw = strings.Replace(raw, "recipients:", `cc: "Oficina <cc@example.com>"
      recipients:`, 1)

	c, err := report.Parse([]byte(raw), time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r, _ := c.Get("SRV-1")
	if diff := cmp.Diff([]string{"a@example.com", "b@example.com"}, r.Reminder.Recipients); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
	if r.Reminder.CC != "cc@example.com" {
		t.Errorf("cc: got %q, want cc@example.com", r.Reminder.CC)
	}

	uri := notify.MailtoURI(r.Reminder.Recipients, r.Reminder.CC, "s", "b")
	if !strings.HasPrefix(uri, "mailto:a@example.com,b@example.com?") {
		t.Errorf("mailto: got %q", uri)
	}
	if strings.ContainsAny(uri, " <>") {
		t.Errorf("mailto must not carry display names: %q", uri)
	}
}

func TestParse_InvalidChecklistStatus(t *testing.T) {
	raw := minimalReport + "    checklist:\n      - {name: Cooler, status: dirty}\n"
	if _, err := report.Parse([]byte(raw), time.UTC); err == nil {
		t.Error("expected error for invalid checklist status")
	}
}

func TestParse_DuplicateID(t *testing.T) {
	entry := strings.TrimPrefix(minimalReport, "\nreports:\n")
	raw := "reports:\n" + entry + entry
	if _, err := report.Parse([]byte(raw), time.UTC); err == nil {
		t.Error("expected error for duplicate service id")
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := report.Parse([]byte("reports: []"), time.UTC); err == nil {
		t.Error("expected error for empty catalog")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.yaml")
	if err := os.WriteFile(path, []byte(minimalReport), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := report.LoadFile(path, time.UTC)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := c.Get("SRV-1"); err != nil {
		t.Errorf("Get: %v", err)
	}

	if _, err := report.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), time.UTC); err == nil {
		t.Error("expected error for missing file")
	}

	def, err := report.LoadFile("", time.UTC)
	if err != nil {
		t.Fatalf("LoadFile default: %v", err)
	}
	if len(def.Reports()) != 1 {
		t.Errorf("default reports: got %d, want 1", len(def.Reports()))
	}
}

func TestGet_NotFound(t *testing.T) {
	c, _ := report.Default(time.UTC)
	if _, err := c.Get("nope"); !errors.Is(err, report.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLinks(t *testing.T) {
	if got := report.WhatsAppURL("(+351) 924 789 391"); got != "https://wa.me/351924789391" {
		t.Errorf("WhatsAppURL: got %q", got)
	}
	if got := report.ShareURL("https://reports.example.com/", "SRV 1"); got != "https://reports.example.com/reports/SRV%201" {
		t.Errorf("ShareURL: got %q", got)
	}

	qr, err := url.Parse(report.QRCodeURL("https://reports.example.com/reports/SRV-1"))
	if err != nil {
		t.Fatalf("QRCodeURL: %v", err)
	}
	if qr.Host != "api.qrserver.com" || qr.Query().Get("size") != "250x250" {
		t.Errorf("QRCodeURL: got %s", qr)
	}
	if qr.Query().Get("data") != "https://reports.example.com/reports/SRV-1" {
		t.Errorf("QRCodeURL data: got %q", qr.Query().Get("data"))
	}

	proxy, _ := url.Parse(report.ProxyURL("https://images.example.com/a.jpg?x=1"))
	if proxy.Query().Get("url") != "https://images.example.com/a.jpg?x=1" {
		t.Errorf("ProxyURL: got %s", proxy)
	}
}

func TestAssemble(t *testing.T) {
	c, err := report.Default(time.UTC)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	r, _ := c.Get("SRV-2025-11-28-001")
	now := time.Date(2026, 8, 30, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	snap := warranty.NewWindow(r.Service.Start, r.WarrantyMonths).Evaluate(now)

	p := report.Assemble(r, snap, report.Options{Now: now, ShareBaseURL: "https://reports.example.com"})

	if p.Warranty.Status != warranty.StatusWarning || p.Warranty.DaysRemaining != 29 {
		t.Errorf("warranty: got %s/%d, want warning/29", p.Warranty.Status, p.Warranty.DaysRemaining)
	}
	if !p.Warranty.ActionRequired {
		t.Error("ActionRequired should be set while in warning")
	}
	if p.Warranty.ExpirationDate != "28/09/2026" {
		t.Errorf("ExpirationDate: got %q", p.Warranty.ExpirationDate)
	}
	if !strings.Contains(p.Notification.Message, p.Warranty.ExpirationDate) {
		t.Error("notification message must carry the widget's expiration date")
	}
	if !strings.Contains(p.Notification.Message, r.Service.ID) {
		t.Error("notification message must carry the service id")
	}
	if p.Notification.NextCheck != "29/09/2026" {
		t.Errorf("NextCheck: got %q, want 29/09/2026", p.Notification.NextCheck)
	}
	if p.GeneratedOn != "30/08/2026" {
		t.Errorf("GeneratedOn: got %q", p.GeneratedOn)
	}
	if diff := cmp.Diff([]string{"HDMI", "Força", "Controles"}, p.Accessories); diff != "" {
		t.Errorf("Accessories mismatch (-want +got):\n%s", diff)
	}
	if p.ClientInitial != "C" {
		t.Errorf("ClientInitial: got %q", p.ClientInitial)
	}
	if p.ExportPath != "/reports/SRV-2025-11-28-001/export.jpg" {
		t.Errorf("ExportPath: got %q", p.ExportPath)
	}
	if len(p.Photos) != 7 || p.Photos[6].Path != "/reports/SRV-2025-11-28-001/photos/6" {
		t.Errorf("Photos: got %+v", p.Photos)
	}
	if p.Links.Share != "https://reports.example.com/reports/SRV-2025-11-28-001" {
		t.Errorf("Share: got %q", p.Links.Share)
	}
	if p.Links.ProviderMailto != "mailto:tecnico@example.com" {
		t.Errorf("ProviderMailto: got %q", p.Links.ProviderMailto)
	}
	if p.Notification.Dispatch != nil || p.Notification.DispatchedAt != "" {
		t.Error("no dispatch expected")
	}
}

func TestAssemble_ThermalComparison(t *testing.T) {
	r := models.Report{
		Service: models.ServiceRecord{ID: "X", Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		Thermal: models.ThermalSpecs{Name: "ZF-12 High Performance", Conductivity: 12},
	}
	p := report.Assemble(r, warranty.Snapshot{}, report.Options{Now: time.Now()})

	want := []report.ThermalBar{
		{Name: "Padrão (Cinza)", Value: 1.5, Percent: 12.5},
		{Name: "Prata (Comum)", Value: 5.0, Percent: 5.0 / 12 * 100},
		{Name: "Alta Perf. (ZF-12)", Value: 12, Percent: 100, Highlight: true},
	}
	if diff := cmp.Diff(want, p.Thermal, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Thermal mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_WithDispatch(t *testing.T) {
	c, _ := report.Default(time.UTC)
	r, _ := c.Get("SRV-2025-11-28-001")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := &models.Dispatch{ID: "d-1", ServiceID: r.Service.ID, DispatchedAt: time.Date(2026, 1, 1, 9, 30, 15, 0, time.UTC)}

	p := report.Assemble(r, warranty.NewWindow(r.Service.Start, r.WarrantyMonths).Evaluate(now), report.Options{Now: now, Dispatch: d})
	if p.Notification.DispatchedAt != "09:30:15" {
		t.Errorf("DispatchedAt: got %q", p.Notification.DispatchedAt)
	}
}
