package preview

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/sync-recorder/internal/frame"
	"github.com/banshee-data/sync-recorder/internal/monitoring"
)

// KeyEscape is the key code that stops a recording.
const KeyEscape = 27

// display is the part of a highgui window the preview uses.
type display interface {
	IMShow(img gocv.Mat)
	WaitKey(delay int) int
	GetWindowProperty(flag gocv.WindowPropertyFlag) float64
	Close() error
}

// Window shows the surface in an OpenCV highgui window.
type Window struct {
	win display

	mu     sync.Mutex
	shown  bool
	quit   bool
	closed bool
}

// NewWindow opens a window titled name.
func NewWindow(name string) *Window {
	return newWindow(gocv.NewWindow(name))
}

func newWindow(d display) *Window {
	return &Window{win: d}
}

// Show draws the surface. It does not process window events; Poll does.
func (w *Window) Show(s *frame.Surface) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	mat, err := surfaceMat(s)
	if err != nil {
		return err
	}
	defer mat.Close()
	w.win.IMShow(mat)
	w.shown = true
	return nil
}

// Poll pumps window events for about a millisecond and reports whether
// the user asked to stop, by pressing Esc or closing the window.
func (w *Window) Poll() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.quit {
		return true
	}

	if key := w.win.WaitKey(1); key == KeyEscape {
		monitoring.Logf("preview: escape pressed")
		w.quit = true
	} else if w.shown && w.win.GetWindowProperty(gocv.WindowPropertyVisible) < 1 {
		// not meaningful before the first frame is drawn
		monitoring.Logf("preview: window closed")
		w.quit = true
	}
	return w.quit
}

// Close destroys the window. Calling Close more than once is a no-op.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.win.Close()
}
