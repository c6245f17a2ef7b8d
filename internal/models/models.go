package models

import (
	"strings"
	"time"
)

// ServiceRecord identifies a single maintenance visit. Date, Time and
// Location are display strings; Start is the instant the warranty counts from.
type ServiceRecord struct {
	ID       string    `json:"id" yaml:"id"`
	Date     string    `json:"date" yaml:"date"`
	Time     string    `json:"time" yaml:"time"`
	Location string    `json:"location" yaml:"location"`
	Start    time.Time `json:"start" yaml:"-"`
}

// Provider is the technician responsible for the service.
type Provider struct {
	Name      string   `json:"name" yaml:"name"`
	Email     string   `json:"email" yaml:"email"`
	WhatsApp  string   `json:"whatsapp" yaml:"whatsapp"`
	Roles     []string `json:"roles" yaml:"roles"`
	AvatarURL string   `json:"avatar_url" yaml:"avatar_url"`
}

// Client is the owner of the serviced device.
type Client struct {
	Name     string `json:"name" yaml:"name"`
	WhatsApp string `json:"whatsapp" yaml:"whatsapp"`
}

// Device describes the console that was serviced.
type Device struct {
	Brand    string `json:"brand" yaml:"brand"`
	Model    string `json:"model" yaml:"model"`
	Storage  string `json:"storage" yaml:"storage"`
	Firmware string `json:"firmware" yaml:"firmware"`
	Mode     string `json:"mode" yaml:"mode"`
	Drive    string `json:"drive" yaml:"drive"`
	Cables   string `json:"cables" yaml:"cables"`
	Adapter  string `json:"adapter" yaml:"adapter"`
}

// Accessories splits the comma separated Cables field into trimmed items.
// Empty items are dropped.
func (d Device) Accessories() []string {
	var out []string
	for _, item := range strings.Split(d.Cables, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ComponentStatus is one row of the internal cleaning checklist.
type ComponentStatus struct {
	Name    string `json:"name" yaml:"name"`
	Status  string `json:"status" yaml:"status"`
	Details string `json:"details,omitempty" yaml:"details"`
}

// ThermalSpecs describes the thermal compound applied during the service.
type ThermalSpecs struct {
	Name         string  `json:"name" yaml:"name"`
	Conductivity float64 `json:"conductivity" yaml:"conductivity"` // W/mK
	Resistance   float64 `json:"resistance" yaml:"resistance"`     // K/W
	TempRange    string  `json:"temp_range" yaml:"temp_range"`
}

// Reminder holds the notification panel's canned recipients.
type Reminder struct {
	Recipients []string `json:"recipients" yaml:"recipients"`
	CC         string   `json:"cc" yaml:"cc"`
}

// Report is the full, immutable description of one maintenance report.
type Report struct {
	Service           ServiceRecord     `json:"service" yaml:"service"`
	Provider          Provider          `json:"provider" yaml:"provider"`
	Client            Client            `json:"client" yaml:"client"`
	Device            Device            `json:"device" yaml:"device"`
	Checklist         []ComponentStatus `json:"checklist" yaml:"checklist"`
	CleaningMaterials []string          `json:"cleaning_materials" yaml:"cleaning_materials"`
	ScrewIntegrity    int               `json:"screw_integrity" yaml:"screw_integrity"` // percent
	Thermal           ThermalSpecs      `json:"thermal" yaml:"thermal"`
	Gallery           []string          `json:"gallery" yaml:"gallery"`
	WarrantyMonths    int               `json:"warranty_months" yaml:"warranty_months"`
	Reminder          Reminder          `json:"reminder" yaml:"reminder"`
}

// ValidComponentStatuses is the set of allowed checklist status values.
var ValidComponentStatuses = map[string]bool{
	"clean":    true,
	"good":     true,
	"warning":  true,
	"critical": true,
}

// Dispatch records one simulated warranty notification. It lives only as long
// as the process.
type Dispatch struct {
	ID           string    `json:"id"`
	ServiceID    string    `json:"service_id"`
	Recipients   []string  `json:"recipients"`
	CC           string    `json:"cc"`
	Subject      string    `json:"subject"`
	MailtoURI    string    `json:"mailto_uri"`
	DispatchedAt time.Time `json:"dispatched_at"`
}
