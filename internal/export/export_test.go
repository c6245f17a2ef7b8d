package export_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tphummel/service_report/internal/export"
	"github.com/tphummel/service_report/internal/report"
	"github.com/tphummel/service_report/internal/warranty"
)

func testPage(t *testing.T) report.Page {
	t.Helper()
	c, err := report.Default(time.UTC)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	r, _ := c.Get("SRV-2025-11-28-001")
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	snap := warranty.NewWindow(r.Service.Start, r.WarrantyMonths).Evaluate(now)
	return report.Assemble(r, snap, report.Options{Now: now})
}

type stubFetcher struct {
	img   image.Image
	err   error
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) (image.Image, error) {
	s.calls++
	return s.img, s.err
}

func TestFilename(t *testing.T) {
	if got := export.Filename("SRV-1"); got != "Relatorio-Tecnico-SRV-1.jpg" {
		t.Errorf("Filename: got %q", got)
	}
}

func TestExport_Placeholders(t *testing.T) {
	out, err := export.New(nil).Export(context.Background(), testPage(t))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != export.DefaultWidth {
		t.Errorf("width: got %d, want %d", b.Dx(), export.DefaultWidth)
	}
	if b.Dy() < 500 {
		t.Errorf("height: got %d, expected a full page", b.Dy())
	}

	// Bottom-right corner is page background.
	r, g, bl, _ := img.At(b.Max.X-2, b.Max.Y-2).RGBA()
	if r>>8 < 0xf0 || g>>8 < 0xf0 || bl>>8 < 0xf0 {
		t.Errorf("background: got %d,%d,%d", r>>8, g>>8, bl>>8)
	}
}

func exportHeight(t *testing.T, p report.Page) int {
	t.Helper()
	out, err := export.New(nil).Export(context.Background(), p)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img.Bounds().Dy()
}

func TestExport_LargeGalleryIsNotClipped(t *testing.T) {
	base := testPage(t)
	large := base
	large.Photos = nil
	for i := 0; i < 100; i++ {
		large.Photos = append(large.Photos, report.Photo{Index: i, URL: fmt.Sprintf("https://example.com/%d.jpg", i)})
	}

	// Tiles are (1200 - 2*40 - 3*16) / 4 = 268px with a 16px gap.
	const rowHeight = 268 + 16
	baseRows := (len(base.Photos) + 3) / 4
	want := exportHeight(t, base) + (25-baseRows)*rowHeight

	got := exportHeight(t, large)
	if got != want {
		t.Errorf("height with 100 photos: got %d, want %d", got, want)
	}
	if got <= 6000 {
		t.Errorf("height with 100 photos: got %d, expected the full gallery past 6000px", got)
	}
}

func TestExport_FetchesEveryPhoto(t *testing.T) {
	tile := image.NewRGBA(image.Rect(0, 0, 8, 8))
	f := &stubFetcher{img: tile}
	p := testPage(t)

	if _, err := export.New(f).Export(context.Background(), p); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if f.calls != len(p.Photos) {
		t.Errorf("fetch calls: got %d, want %d", f.calls, len(p.Photos))
	}
}

func TestExport_FailedPhotoProducesNothing(t *testing.T) {
	f := &stubFetcher{err: export.ErrImageUnavailable}

	out, err := export.New(f).Export(context.Background(), testPage(t))
	if !errors.Is(err, export.ErrImageUnavailable) {
		t.Fatalf("expected ErrImageUnavailable, got %v", err)
	}
	if out != nil {
		t.Errorf("expected no output, got %d bytes", len(out))
	}
	if f.calls != 1 {
		t.Errorf("export should stop at the first failure, got %d calls", f.calls)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/blocked.png" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		img := image.NewRGBA(image.Rect(0, 0, 4, 3))
		img.Set(0, 0, color.White)
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, img)
	}))
	defer srv.Close()

	f := export.NewHTTPFetcher(time.Second)

	img, err := f.Fetch(context.Background(), srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("bounds: got %v", img.Bounds())
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/blocked.png"); !errors.Is(err, export.ErrImageUnavailable) {
		t.Errorf("expected ErrImageUnavailable for 403, got %v", err)
	}
}
