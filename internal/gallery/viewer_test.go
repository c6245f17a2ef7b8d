package gallery_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tphummel/service_report/internal/gallery"
)

var images = []string{"a.jpg", "b.jpg", "c.jpg"}

func TestOpenAt(t *testing.T) {
	v := gallery.NewViewer(images)
	if err := v.OpenAt(1); err != nil {
		t.Fatalf("OpenAt: %v", err)
	}

	want := gallery.State{
		Open:      true,
		Index:     1,
		Position:  "2 / 3",
		Total:     3,
		Image:     "b.jpg",
		PrevIndex: 0,
		NextIndex: 2,
		ShowNav:   true,
	}
	if diff := cmp.Diff(want, v.State()); diff != "" {
		t.Errorf("State mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenAt_OutOfRange(t *testing.T) {
	v := gallery.NewViewer(images)
	for _, idx := range []int{-1, 3, 100} {
		if err := v.OpenAt(idx); !errors.Is(err, gallery.ErrIndexOutOfRange) {
			t.Errorf("OpenAt(%d): expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
	if v.State().Open {
		t.Error("viewer should stay closed after a rejected OpenAt")
	}
}

func TestNavigationWraps(t *testing.T) {
	v := gallery.NewViewer(images)
	_ = v.OpenAt(2)

	v.Next()
	if got := v.State().Index; got != 0 {
		t.Errorf("Next from last: got %d, want 0", got)
	}
	v.Prev()
	if got := v.State().Index; got != 2 {
		t.Errorf("Prev from first: got %d, want 2", got)
	}
	v.Prev()
	if got := v.State().Index; got != 1 {
		t.Errorf("Prev: got %d, want 1", got)
	}
}

func TestNavigationResetsZoom(t *testing.T) {
	v := gallery.NewViewer(images)
	_ = v.OpenAt(0)
	v.ToggleZoom()
	if !v.State().Zoomed {
		t.Fatal("expected zoomed after ToggleZoom")
	}
	if v.State().ShowNav {
		t.Error("navigation arrows should be hidden while zoomed")
	}
	v.Next()
	if v.State().Zoomed {
		t.Error("Next should reset zoom")
	}
}

func TestKey(t *testing.T) {
	v := gallery.NewViewer(images)
	_ = v.OpenAt(0)

	v.Key("ArrowRight")
	if got := v.State().Index; got != 1 {
		t.Errorf("ArrowRight: got %d, want 1", got)
	}

	v.ToggleZoom()
	v.Key("ArrowRight")
	v.Key("ArrowLeft")
	if got := v.State().Index; got != 1 {
		t.Errorf("arrows while zoomed should be ignored: got index %d, want 1", got)
	}

	v.Key("Escape")
	st := v.State()
	if st.Open || st.Zoomed {
		t.Errorf("Escape should close and unzoom: %+v", st)
	}

	v.Key("ArrowRight")
	if got := v.State().Index; got != 1 {
		t.Errorf("keys on a closed viewer should be ignored: got %d", got)
	}
}

func TestSingleImageHidesNav(t *testing.T) {
	v := gallery.NewViewer([]string{"only.jpg"})
	_ = v.OpenAt(0)
	if v.State().ShowNav {
		t.Error("nav should be hidden for a single image")
	}
	v.Next()
	if got := v.State().Index; got != 0 {
		t.Errorf("Next on single image: got %d, want 0", got)
	}
}

func TestEmptyGallery(t *testing.T) {
	v := gallery.NewViewer(nil)
	v.Next()
	v.Prev()
	if err := v.OpenAt(0); !errors.Is(err, gallery.ErrIndexOutOfRange) {
		t.Errorf("OpenAt on empty gallery: got %v", err)
	}
	if st := v.State(); st.Total != 0 || st.Image != "" {
		t.Errorf("unexpected state: %+v", st)
	}
}
