// Package gallery holds the lightbox state for the report's photo gallery.
package gallery

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned by OpenAt for an index outside the gallery.
var ErrIndexOutOfRange = errors.New("photo index out of range")

// Viewer is a lightbox over a fixed list of image URLs. Navigation wraps at
// both ends and always resets the zoom.
type Viewer struct {
	images []string
	index  int
	open   bool
	zoomed bool
}

// NewViewer returns a closed viewer over images.
func NewViewer(images []string) *Viewer {
	return &Viewer{images: images}
}

// OpenAt opens the lightbox on the image at index, unzoomed.
func (v *Viewer) OpenAt(index int) error {
	if index < 0 || index >= len(v.images) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(v.images))
	}
	v.index = index
	v.open = true
	v.zoomed = false
	return nil
}

// Close hides the lightbox.
func (v *Viewer) Close() {
	v.open = false
	v.zoomed = false
}

// Next moves to the following image, wrapping to the first.
func (v *Viewer) Next() {
	if len(v.images) == 0 {
		return
	}
	v.zoomed = false
	v.index = (v.index + 1) % len(v.images)
}

// Prev moves to the preceding image, wrapping to the last.
func (v *Viewer) Prev() {
	if len(v.images) == 0 {
		return
	}
	v.zoomed = false
	v.index = (v.index - 1 + len(v.images)) % len(v.images)
}

// ToggleZoom flips the zoom flag.
func (v *Viewer) ToggleZoom() {
	v.zoomed = !v.zoomed
}

// Key applies a keyboard key. Escape closes; the arrow keys navigate only
// while not zoomed.
func (v *Viewer) Key(key string) {
	if !v.open {
		return
	}
	switch key {
	case "Escape":
		v.Close()
	case "ArrowLeft":
		if !v.zoomed {
			v.Prev()
		}
	case "ArrowRight":
		if !v.zoomed {
			v.Next()
		}
	}
}

// State is a serializable view of the viewer.
type State struct {
	Open      bool   `json:"open"`
	Index     int    `json:"index"`
	Position  string `json:"position"`
	Total     int    `json:"total"`
	Image     string `json:"image,omitempty"`
	Zoomed    bool   `json:"zoomed"`
	PrevIndex int    `json:"prev_index"`
	NextIndex int    `json:"next_index"`
	ShowNav   bool   `json:"show_nav"`
}

// State returns the current viewer state. PrevIndex and NextIndex are the
// indexes Prev and Next would move to.
func (v *Viewer) State() State {
	n := len(v.images)
	s := State{
		Open:   v.open,
		Index:  v.index,
		Total:  n,
		Zoomed: v.zoomed,
	}
	if n == 0 {
		return s
	}
	s.Image = v.images[v.index]
	s.Position = fmt.Sprintf("%d / %d", v.index+1, n)
	s.PrevIndex = (v.index - 1 + n) % n
	s.NextIndex = (v.index + 1) % n
	s.ShowNav = !v.zoomed && n > 1
	return s
}
