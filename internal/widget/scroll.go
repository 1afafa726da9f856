package widget

import "time"

const (
	// ScrollThreshold is the default distance from the bottom edge under which the viewport counts as
	// scrolled to the bottom.
	ScrollThreshold = 25
	// ScrollDelay is how long a front end waits after a transcript change before calling FlushScroll, so
	// layout settles before the viewport is measured.
	ScrollDelay = 100 * time.Millisecond
)

// Viewport is the scrollable area showing the transcript. Measurements are in the front end's own units
// (pixels in a browser, rows in a terminal).
type Viewport interface {
	ScrollHeight() int
	ScrollTop() int
	ClientHeight() int
	ScrollToBottom(smooth bool)
}

type scroller struct {
	viewport     Viewport
	threshold    int
	smooth       bool
	userScrolled bool
	pending      bool
}

func (s *scroller) nearBottom() bool {
	if s.viewport == nil {
		return true
	}
	d := s.viewport.ScrollHeight() - s.viewport.ScrollTop() - s.viewport.ClientHeight()
	if d < 0 {
		d = -d
	}
	return d < s.threshold
}

func (s *scroller) shouldFollow() bool {
	return !s.userScrolled || s.nearBottom()
}

// AttachViewport connects the session to the area rendering its transcript. A nil viewport detaches it;
// without a viewport every scroll operation is a no-op.
func (s *Session) AttachViewport(v Viewport) {
	s.scroll.viewport = v
}

// OnScroll records a scroll performed by the user. Scrolling away from the bottom stops the transcript from
// following new content until the user comes back to the bottom.
func (s *Session) OnScroll() {
	if s.scroll.viewport == nil {
		return
	}
	s.scroll.userScrolled = !s.scroll.nearBottom()
}

// ScrollPending reports whether a transcript change is waiting for FlushScroll.
func (s *Session) ScrollPending() bool {
	return s.scroll.pending
}

// FlushScroll performs the scroll scheduled by the last transcript changes. Front ends call it ScrollDelay
// after a change. It reports whether the viewport was scrolled.
func (s *Session) FlushScroll() bool {
	if !s.scroll.pending {
		return false
	}
	s.scroll.pending = false
	if s.scroll.viewport == nil || !s.open {
		return false
	}
	s.scroll.viewport.ScrollToBottom(s.scroll.smooth)
	s.scroll.userScrolled = false
	return true
}
