// Package resize implements the logo resize drag gesture. Only vertical
// pointer movement matters: dragging down grows the logo, dragging up
// shrinks it, always within the layout bounds.
package resize

import (
	"sync"

	"github.com/mrt-jh/smart-image-editor/pkg/layout"
)

// Controller turns pointer events into logo heights. A Controller is safe
// for concurrent use; at most one drag is active at a time.
type Controller struct {
	onChange func(height float64)

	mu   sync.Mutex
	drag *gesture
}

// NewController creates a controller that reports every new height to
// onChange. onChange may be nil.
func NewController(onChange func(height float64)) *Controller {
	return &Controller{onChange: onChange}
}

type gesture struct {
	startY      float64
	startHeight float64
	height      float64
}

// Begin starts a drag at pointer y with the current logo height. A drag
// that is already active is replaced.
func (c *Controller) Begin(y, currentHeight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := layout.ClampLogoHeight(currentHeight)
	c.drag = &gesture{startY: y, startHeight: h, height: h}
}

// Active reports whether a drag is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag != nil
}

// Move feeds a pointer position into the active drag and returns the new
// height. Without an active drag it returns 0 and false.
func (c *Controller) Move(y float64) (float64, bool) {
	c.mu.Lock()
	d := c.drag
	if d == nil {
		c.mu.Unlock()
		return 0, false
	}
	h := layout.ClampLogoHeight(d.startHeight + (y - d.startY))
	changed := h != d.height
	d.height = h
	cb := c.onChange
	c.mu.Unlock()

	if changed && cb != nil {
		cb(h)
	}
	return h, true
}

// Height returns the height of the active drag.
func (c *Controller) Height() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return 0, false
	}
	return c.drag.height, true
}

// End finishes the active drag and returns its final height. Calling End
// without an active drag is a no-op.
func (c *Controller) End() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return 0, false
	}
	h := c.drag.height
	c.drag = nil
	return h, true
}

// Close ends any active drag. The controller stays usable.
func (c *Controller) Close() {
	c.End()
}
