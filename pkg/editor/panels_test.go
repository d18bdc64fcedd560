package editor

import "testing"

func TestPanelsDefaults(t *testing.T) {
	p := NewPanels()
	if !p.Visible(PanelExplorer) {
		t.Error("explorer should start visible")
	}
	if p.Visible(PanelPreview) || p.Visible(PanelAssistant) {
		t.Error("preview and assistant should start hidden")
	}
}

func TestPanelsToggleIsIndependent(t *testing.T) {
	p := NewPanels()

	if got := p.Toggle(PanelPreview); !got {
		t.Error("toggling hidden preview should show it")
	}
	if !p.Visible(PanelExplorer) {
		t.Error("toggling preview must not touch explorer")
	}
	if p.Visible(PanelAssistant) {
		t.Error("toggling preview must not touch assistant")
	}

	// Any combination may be visible at once.
	p.Show(PanelAssistant)
	if !(p.Visible(PanelExplorer) && p.Visible(PanelPreview) && p.Visible(PanelAssistant)) {
		t.Error("all three panels should be visible simultaneously")
	}

	p.Hide(PanelExplorer)
	p.Hide(PanelPreview)
	p.Hide(PanelAssistant)
	if p.Visible(PanelExplorer) || p.Visible(PanelPreview) || p.Visible(PanelAssistant) {
		t.Error("all three panels should be hidden simultaneously")
	}
}
