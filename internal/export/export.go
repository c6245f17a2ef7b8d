// Package export rasterizes an assembled report page to a single JPEG.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tphummel/service_report/internal/report"
	"github.com/tphummel/service_report/internal/warranty"
)

const (
	DefaultWidth   = 1200
	DefaultQuality = 90

	margin     = 40
	gap        = 16
	lineHeight = 20
	columns    = 4
)

// ErrImageUnavailable wraps every failure to load a gallery image.
var ErrImageUnavailable = errors.New("image unavailable")

// Alert is the user-facing text for a failed export.
const Alert = "Não foi possível gerar a imagem completa. Algumas imagens podem estar bloqueadas pelo servidor."

var (
	background = color.RGBA{0xf8, 0xfa, 0xfc, 0xff}
	panel      = color.RGBA{0xff, 0xff, 0xff, 0xff}
	border     = color.RGBA{0xe2, 0xe8, 0xf0, 0xff}
	ink        = color.RGBA{0x1e, 0x29, 0x3b, 0xff}
	muted      = color.RGBA{0x64, 0x74, 0x8b, 0xff}
	accent     = color.RGBA{0x02, 0x84, 0xc7, 0xff}
	reference  = color.RGBA{0xcb, 0xd5, 0xe1, 0xff}
	healthy    = color.RGBA{0x10, 0xb9, 0x81, 0xff}
	track      = color.RGBA{0xe2, 0xe8, 0xf0, 0xff}

	statusColors = map[warranty.Status]color.RGBA{
		warranty.StatusActive:  {0x0e, 0xa5, 0xe9, 0xff},
		warranty.StatusWarning: {0xf5, 0x9e, 0x0b, 0xff},
		warranty.StatusExpired: {0xef, 0x44, 0x44, 0xff},
	}
)

// Filename is the download name for the export of serviceID.
func Filename(serviceID string) string {
	return fmt.Sprintf("Relatorio-Tecnico-%s.jpg", serviceID)
}

// Exporter renders pages to JPEG. With a nil Fetcher gallery photos are
// drawn as placeholders; otherwise every photo must load or the export fails.
type Exporter struct {
	Fetcher Fetcher
	Width   int
	Quality int
}

// New returns an Exporter with default dimensions.
func New(f Fetcher) *Exporter {
	return &Exporter{Fetcher: f, Width: DefaultWidth, Quality: DefaultQuality}
}

// Export renders p and returns the encoded JPEG. On error no bytes are
// returned.
func (e *Exporter) Export(ctx context.Context, p report.Page) ([]byte, error) {
	width := e.Width
	if width <= 0 {
		width = DefaultWidth
	}
	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	photos := make([]image.Image, len(p.Photos))
	if e.Fetcher != nil {
		for i, ph := range p.Photos {
			img, err := e.Fetcher.Fetch(ctx, ph.URL)
			if err != nil {
				return nil, fmt.Errorf("photo %d: %w", i+1, err)
			}
			photos[i] = img
		}
	}

	// A first pass without pixels measures the layout so nothing is clipped.
	m := &canvas{width: width, y: margin}
	m.render(p, photos)

	c := newCanvas(width, m.y+margin)
	c.render(p, photos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// canvas tracks the layout cursor. A canvas with a nil img only measures.
type canvas struct {
	img   *image.RGBA
	face  font.Face
	width int
	y     int
}

func newCanvas(width, height int) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	return &canvas{img: img, face: basicfont.Face7x13, width: width, y: margin}
}

func (c *canvas) fill(r image.Rectangle, col color.Color) {
	if c.img == nil {
		return
	}
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Over)
}

func (c *canvas) text(x, y int, s string, col color.Color) {
	if c.img == nil {
		return
	}
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: c.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// line writes s at the left margin and advances the cursor.
func (c *canvas) line(s string, col color.Color) {
	c.y += lineHeight
	c.text(margin+gap, c.y, s, col)
}

func (c *canvas) row(label, value string) {
	c.y += lineHeight
	c.text(margin+gap, c.y, label, muted)
	c.text(margin+gap+200, c.y, value, ink)
}

func (c *canvas) section(title string) {
	c.y += gap
	c.fill(image.Rect(margin, c.y, c.width-margin, c.y+1), border)
	c.y += lineHeight
	c.text(margin, c.y, strings.ToUpper(title), accent)
}

// bar draws a horizontal meter filled to pct percent.
func (c *canvas) bar(x, w int, pct float64, col color.Color) {
	c.y += 8
	c.fill(image.Rect(x, c.y, x+w, c.y+10), track)
	filled := int(float64(w) * pct / 100)
	if filled > 0 {
		c.fill(image.Rect(x, c.y, x+filled, c.y+10), col)
	}
	c.y += 10
}

func (c *canvas) render(p report.Page, photos []image.Image) {
	r := p.Report

	c.fill(image.Rect(0, 0, c.width, margin+3*lineHeight+gap), panel)
	c.line("Relatório de Manutenção", ink)
	c.line("ID: "+r.Service.ID, muted)
	c.line(r.Service.Date+" | "+r.Service.Time+" | "+r.Service.Location, muted)
	c.y += gap

	c.section("Técnico Responsável")
	c.line(r.Provider.Name, ink)
	if len(r.Provider.Roles) > 0 {
		c.line(strings.Join(r.Provider.Roles, " · "), muted)
	}
	c.row("E-mail", r.Provider.Email)
	c.row("WhatsApp", r.Provider.WhatsApp)

	c.section("Informações do Cliente")
	c.line(p.ClientInitial+"  "+r.Client.Name+" (Proprietário)", ink)
	c.row("WhatsApp", r.Client.WhatsApp)

	c.section("Especificações do Console")
	c.row("Marca", r.Device.Brand)
	c.row("Modelo", r.Device.Model)
	c.row("Armazenamento", r.Device.Storage)
	c.row("Firmware", r.Device.Firmware)
	c.row("Modo", r.Device.Mode)
	c.row("Drive", r.Device.Drive)
	c.row("Acessórios Entregues", strings.Join(append(append([]string{}, p.Accessories...), r.Device.Adapter), ", "))

	c.section("Estado dos Componentes")
	c.row("Integridade dos Parafusos", fmt.Sprintf("%d%%", r.ScrewIntegrity))
	c.bar(margin+gap, 400, float64(r.ScrewIntegrity), healthy)
	for _, item := range r.Checklist {
		value := checklistLabel(item.Status)
		if item.Details != "" {
			value += " - " + item.Details
		}
		c.row(item.Name, value)
	}
	c.row("Thermal Pads", "CONFERIDOS")
	if len(r.CleaningMaterials) > 0 {
		c.row("Materiais", strings.Join(r.CleaningMaterials, ", "))
	}

	c.section("Substituição Térmica")
	c.row(r.Thermal.Name, fmt.Sprintf("%g W/mK", r.Thermal.Conductivity))
	c.row("Resistência", fmt.Sprintf("%g K/W", r.Thermal.Resistance))
	c.row("Temp. Operação", r.Thermal.TempRange)
	for _, b := range p.Thermal {
		c.row(b.Name, fmt.Sprintf("%g W/mK", b.Value))
		col := color.Color(reference)
		if b.Highlight {
			col = accent
		}
		c.bar(margin+gap, 600, b.Percent, col)
	}

	if len(p.Photos) > 0 {
		c.section("Registro Fotográfico")
		c.gallery(photos)
	}

	c.section("Garantia & Monitoramento")
	w := p.Warranty
	col := statusColors[w.Status]
	c.line(w.Label, col)
	if w.ActionRequired {
		c.line("Ação Necessária: Renove agora", col)
	}
	c.row("Dias Restantes", fmt.Sprintf("%d", w.DisplayDays))
	c.row("Início", w.StartDate)
	c.row("Vencimento", w.ExpirationDate)
	c.bar(margin+gap, c.width-2*(margin+gap), w.ProgressPercent, col)

	c.y += gap
	c.line("Documento digital gerado em "+p.GeneratedOn+". Válido como comprovante técnico.", muted)
	c.line("TECHMAINTAIN SYSTEM SECURE REPORT", reference)
}

// gallery lays photos out in a fixed grid. Missing images become grey tiles.
func (c *canvas) gallery(photos []image.Image) {
	size := (c.width - 2*margin - (columns-1)*gap) / columns
	c.y += gap
	for i, img := range photos {
		col, rowIdx := i%columns, i/columns
		x := margin + col*(size+gap)
		y := c.y + rowIdx*(size+gap)
		dst := image.Rect(x, y, x+size, y+size)
		if img == nil {
			c.fill(dst, reference)
			continue
		}
		if c.img == nil {
			continue
		}
		draw.ApproxBiLinear.Scale(c.img, dst, img, img.Bounds(), draw.Over, nil)
	}
	rows := (len(photos) + columns - 1) / columns
	c.y += rows*(size+gap) - gap
}

func checklistLabel(status string) string {
	if status == "clean" {
		return "Limpo"
	}
	return status
}
