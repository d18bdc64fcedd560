package editor

import "sync"

// Panel names the three side panels.
type Panel string

const (
	PanelExplorer  Panel = "explorer"
	PanelPreview   Panel = "preview"
	PanelAssistant Panel = "assistant"
)

// Panels tracks side-panel visibility. The three flags are independent:
// any combination may be visible or hidden, and toggling one never affects
// the others.
type Panels struct {
	mu      sync.Mutex
	visible map[Panel]bool
}

// NewPanels returns panel state with the explorer visible and the preview
// and assistant hidden.
func NewPanels() *Panels {
	return &Panels{
		visible: map[Panel]bool{
			PanelExplorer:  true,
			PanelPreview:   false,
			PanelAssistant: false,
		},
	}
}

// Toggle flips one panel's visibility and returns the new state.
func (p *Panels) Toggle(panel Panel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[panel] = !p.visible[panel]
	return p.visible[panel]
}

// Show makes a panel visible.
func (p *Panels) Show(panel Panel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[panel] = true
}

// Hide makes a panel invisible.
func (p *Panels) Hide(panel Panel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[panel] = false
}

// Visible reports whether a panel is currently shown.
func (p *Panels) Visible(panel Panel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[panel]
}
