// Package editor holds the in-memory editing session: open tabs, the active
// tab, dirty tracking, and the side-panel visibility flags. The session is a
// private, per-context view over the shared record store; all persistence
// goes through the RecordSource collaborator.
package editor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/driftpad/driftpad/pkg/models"
	"github.com/driftpad/driftpad/pkg/protocol"
)

// RecordSource is the external store the session reads file content from and
// flushes saves to.
type RecordSource interface {
	Get(ctx context.Context, fileID string) (*models.RecordContent, error)
	Save(ctx context.Context, fileID, content string) error
}

// Tab is an open editing session for one file. Content diverges from the
// persisted record once edited and is reconciled only by a successful save.
type Tab struct {
	ID        string
	FileID    string
	Name      string
	Path      string
	Extension string
	Content   string
	Dirty     bool
	Active    bool
}

// Session is an ordered set of tabs with at most one active. Operations are
// applied in call order; methods are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	source   RecordSource
	tabs     []*Tab
	activeID string

	// opens collapses concurrent OpenFile calls for the same file so a slow
	// fetch cannot produce two tabs.
	opens singleflight.Group
}

// NewSession creates an empty session backed by the given record source.
func NewSession(source RecordSource) *Session {
	return &Session{source: source}
}

// OpenFile opens a file record in a tab and activates it.
//
// Folders are ignored. If a tab for the file already exists it is activated
// without a fetch. Otherwise the content is fetched from the record source
// and a new clean tab is appended; a fetch failure returns a FetchError and
// creates no tab. Concurrent opens of the same file share one fetch and one
// tab.
func (s *Session) OpenFile(ctx context.Context, record models.Record) (*Tab, error) {
	if record.IsFolder() {
		return nil, nil
	}

	s.mu.Lock()
	if t := s.tabForFile(record.ID); t != nil {
		s.activateLocked(t.ID)
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	v, err, _ := s.opens.Do(record.ID, func() (interface{}, error) {
		content, err := s.source.Get(ctx, record.ID)
		if err != nil {
			return nil, &protocol.FetchError{FileID: record.ID, Err: err}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if t := s.tabForFile(record.ID); t != nil {
			s.activateLocked(t.ID)
			return t, nil
		}

		t := &Tab{
			ID:        uuid.NewString(),
			FileID:    content.ID,
			Name:      content.Name,
			Path:      content.Path,
			Extension: content.Extension,
			Content:   content.Content,
		}
		s.tabs = append(s.tabs, t)
		s.activateLocked(t.ID)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tab), nil
}

// SetActiveTab activates the tab with the given ID. Unknown IDs are a no-op.
func (s *Session) SetActiveTab(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabByID(tabID) == nil {
		return
	}
	s.activateLocked(tabID)
}

// UpdateContent replaces a tab's content and marks it dirty. Unknown IDs are
// a no-op. Debouncing call frequency is the caller's concern.
func (s *Session) UpdateContent(tabID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tabByID(tabID)
	if t == nil {
		return
	}
	t.Content = content
	t.Dirty = true
}

// CloseTab removes a tab. If the closed tab was active, the tab now at the
// same index becomes active, or the last tab if the closed one was last.
// Closing the only tab leaves the session with no active tab. Unsaved
// content is discarded; confirmation is the caller's concern.
func (s *Session) CloseTab(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, t := range s.tabs {
		if t.ID == tabID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	wasActive := s.tabs[idx].Active
	s.tabs = append(s.tabs[:idx], s.tabs[idx+1:]...)

	if len(s.tabs) == 0 {
		s.activeID = ""
		return
	}
	if wasActive {
		if idx >= len(s.tabs) {
			idx = len(s.tabs) - 1
		}
		s.activateLocked(s.tabs[idx].ID)
	}
}

// Save flushes a dirty tab's content to the record source. Clean tabs are a
// no-op. On failure the tab keeps its content and stays dirty, and the error
// is returned as a PersistenceError for the caller to surface; there is no
// automatic retry.
func (s *Session) Save(ctx context.Context, tabID string) error {
	s.mu.Lock()
	t := s.tabByID(tabID)
	if t == nil {
		s.mu.Unlock()
		return &protocol.NotFoundError{Resource: "tab", ID: tabID}
	}
	if !t.Dirty {
		s.mu.Unlock()
		return nil
	}
	fileID := t.FileID
	content := t.Content
	s.mu.Unlock()

	if err := s.source.Save(ctx, fileID, content); err != nil {
		return &protocol.PersistenceError{Op: "save", ID: fileID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Edits made while the save was in flight keep the tab dirty.
	if t := s.tabByID(tabID); t != nil && t.Content == content {
		t.Dirty = false
	}
	return nil
}

// Tabs returns the tabs in open order.
func (s *Session) Tabs() []*Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tab, len(s.tabs))
	copy(out, s.tabs)
	return out
}

// Tab returns the tab with the given ID, or nil.
func (s *Session) Tab(tabID string) *Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabByID(tabID)
}

// ActiveTab returns the active tab, or nil for an empty session.
func (s *Session) ActiveTab() *Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabByID(s.activeID)
}

// ActiveTabID returns the active tab's ID, or "" for an empty session.
func (s *Session) ActiveTabID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *Session) activateLocked(tabID string) {
	for _, t := range s.tabs {
		t.Active = t.ID == tabID
	}
	s.activeID = tabID
}

func (s *Session) tabByID(tabID string) *Tab {
	for _, t := range s.tabs {
		if t.ID == tabID {
			return t
		}
	}
	return nil
}

func (s *Session) tabForFile(fileID string) *Tab {
	for _, t := range s.tabs {
		if t.FileID == fileID {
			return t
		}
	}
	return nil
}
