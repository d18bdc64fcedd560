package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/driftpad/driftpad/pkg/models"
	"github.com/driftpad/driftpad/pkg/protocol"
)

// fakeSource is an in-memory RecordSource with failure injection.
type fakeSource struct {
	mu       sync.Mutex
	content  map[string]string
	getErr   error
	saveErr  error
	getDelay time.Duration
	gets     int
	saves    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{content: map[string]string{}}
}

func (f *fakeSource) Get(_ context.Context, fileID string) (*models.RecordContent, error) {
	if f.getDelay > 0 {
		time.Sleep(f.getDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.content[fileID]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", fileID)
	}
	return &models.RecordContent{
		Record:  models.Record{ID: fileID, Name: fileID + ".js", Path: "/" + fileID + ".js", Type: models.TypeFile},
		Content: c,
	}, nil
}

func (f *fakeSource) Save(_ context.Context, fileID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.content[fileID] = content
	return nil
}

func fileRecord(id string) models.Record {
	return models.Record{ID: id, Name: id + ".js", Type: models.TypeFile}
}

func TestOpenFileCreatesCleanActiveTab(t *testing.T) {
	src := newFakeSource()
	src.content["5"] = "x"
	s := NewSession(src)

	tab, err := s.OpenFile(context.Background(), fileRecord("5"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if tab.Content != "x" || tab.Dirty || !tab.Active {
		t.Errorf("tab = %+v, want clean active tab with content x", tab)
	}
	if s.ActiveTabID() != tab.ID {
		t.Error("opened tab should be active")
	}
}

func TestOpenFolderIsNoop(t *testing.T) {
	src := newFakeSource()
	s := NewSession(src)

	tab, err := s.OpenFile(context.Background(), models.Record{ID: "d", Type: models.TypeFolder})
	if err != nil || tab != nil {
		t.Errorf("OpenFile(folder) = (%v, %v), want (nil, nil)", tab, err)
	}
	if src.gets != 0 {
		t.Error("opening a folder must not fetch")
	}
}

func TestOpenSameFileTwiceReusesTab(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = "one"
	src.content["b"] = "two"
	s := NewSession(src)

	first, _ := s.OpenFile(context.Background(), fileRecord("a"))
	s.OpenFile(context.Background(), fileRecord("b"))

	again, err := s.OpenFile(context.Background(), fileRecord("a"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if again.ID != first.ID {
		t.Error("reopening a file must reuse its tab")
	}
	if len(s.Tabs()) != 2 {
		t.Errorf("tab count = %d, want 2", len(s.Tabs()))
	}
	if src.gets != 2 {
		t.Errorf("gets = %d, want 2 (reopen must not refetch)", src.gets)
	}
	if s.ActiveTabID() != first.ID {
		t.Error("reopened tab should become active")
	}
}

func TestConcurrentOpensShareOneTab(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = "one"
	src.getDelay = 20 * time.Millisecond
	s := NewSession(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.OpenFile(context.Background(), fileRecord("a")); err != nil {
				t.Errorf("OpenFile: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(s.Tabs()); n != 1 {
		t.Errorf("tab count = %d, want 1", n)
	}
	if src.gets != 1 {
		t.Errorf("gets = %d, want 1 (in-flight opens must share a fetch)", src.gets)
	}
}

func TestOpenFileFetchFailureCreatesNoTab(t *testing.T) {
	src := newFakeSource()
	src.getErr = errors.New("boom")
	s := NewSession(src)

	_, err := s.OpenFile(context.Background(), fileRecord("a"))
	var fe *protocol.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if len(s.Tabs()) != 0 {
		t.Error("failed open must not create a tab")
	}

	// Retry by reselecting succeeds once the source recovers.
	src.getErr = nil
	src.content["a"] = "ok"
	if _, err := s.OpenFile(context.Background(), fileRecord("a")); err != nil {
		t.Fatalf("retry OpenFile: %v", err)
	}
	if len(s.Tabs()) != 1 {
		t.Error("retry should create the tab")
	}
}

func TestSetActiveTab(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = ""
	src.content["b"] = ""
	s := NewSession(src)

	ta, _ := s.OpenFile(context.Background(), fileRecord("a"))
	tb, _ := s.OpenFile(context.Background(), fileRecord("b"))

	s.SetActiveTab(ta.ID)
	if s.ActiveTabID() != ta.ID {
		t.Error("SetActiveTab(a) should activate a")
	}
	if tb.Active {
		t.Error("only one tab may be active")
	}

	s.SetActiveTab("unknown")
	if s.ActiveTabID() != ta.ID {
		t.Error("unknown tab ID must be a no-op")
	}
}

func TestUpdateContentMarksDirty(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = "x"
	s := NewSession(src)

	tab, _ := s.OpenFile(context.Background(), fileRecord("a"))
	s.UpdateContent(tab.ID, "y")

	got := s.Tab(tab.ID)
	if got.Content != "y" || !got.Dirty {
		t.Errorf("tab = %+v, want content y, dirty", got)
	}
}

func TestSaveCleanTabIsNoop(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = "x"
	s := NewSession(src)

	tab, _ := s.OpenFile(context.Background(), fileRecord("a"))
	if err := s.Save(context.Background(), tab.ID); err != nil {
		t.Fatalf("Save clean tab: %v", err)
	}
	if src.saves != 0 {
		t.Error("saving a clean tab must not hit the store")
	}
}

func TestSaveSuccessClearsDirty(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = "x"
	s := NewSession(src)

	tab, _ := s.OpenFile(context.Background(), fileRecord("a"))
	s.UpdateContent(tab.ID, "y")
	if err := s.Save(context.Background(), tab.ID); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := s.Tab(tab.ID); got.Dirty {
		t.Error("successful save must clear dirty")
	}
	if src.content["a"] != "y" {
		t.Errorf("store content = %q, want y", src.content["a"])
	}
}

func TestSaveFailureKeepsContentAndDirty(t *testing.T) {
	src := newFakeSource()
	src.content["5"] = "x"
	s := NewSession(src)

	tab, _ := s.OpenFile(context.Background(), fileRecord("5"))
	s.UpdateContent(tab.ID, "y")

	src.saveErr = errors.New("store down")
	err := s.Save(context.Background(), tab.ID)
	var pe *protocol.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}

	got := s.Tab(tab.ID)
	if got.Content != "y" || !got.Dirty {
		t.Errorf("tab = %+v, want content y still dirty", got)
	}

	// Manual retry after recovery succeeds.
	src.saveErr = nil
	if err := s.Save(context.Background(), tab.ID); err != nil {
		t.Fatalf("retry Save: %v", err)
	}
	if s.Tab(tab.ID).Dirty {
		t.Error("retried save should clear dirty")
	}
}

func TestSaveUnknownTab(t *testing.T) {
	s := NewSession(newFakeSource())
	var nf *protocol.NotFoundError
	if err := s.Save(context.Background(), "nope"); !errors.As(err, &nf) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}

func TestCloseActiveTabActivatesSameIndex(t *testing.T) {
	src := newFakeSource()
	for _, id := range []string{"a", "b", "c"} {
		src.content[id] = ""
	}
	s := NewSession(src)

	s.OpenFile(context.Background(), fileRecord("a"))
	tb, _ := s.OpenFile(context.Background(), fileRecord("b"))
	tc, _ := s.OpenFile(context.Background(), fileRecord("c"))

	s.SetActiveTab(tb.ID)
	s.CloseTab(tb.ID)

	if s.ActiveTabID() != tc.ID {
		t.Error("closing the middle active tab should activate the tab now at its index")
	}
	active := 0
	for _, tab := range s.Tabs() {
		if tab.Active {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active tab count = %d, want 1", active)
	}
}

func TestCloseLastActiveTabActivatesNewLast(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = ""
	src.content["b"] = ""
	s := NewSession(src)

	ta, _ := s.OpenFile(context.Background(), fileRecord("a"))
	tb, _ := s.OpenFile(context.Background(), fileRecord("b"))

	s.CloseTab(tb.ID)
	if s.ActiveTabID() != ta.ID {
		t.Error("closing the last active tab should activate the new last tab")
	}
}

func TestCloseInactiveTabKeepsActive(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = ""
	src.content["b"] = ""
	s := NewSession(src)

	ta, _ := s.OpenFile(context.Background(), fileRecord("a"))
	tb, _ := s.OpenFile(context.Background(), fileRecord("b"))

	s.CloseTab(ta.ID)
	if s.ActiveTabID() != tb.ID {
		t.Error("closing an inactive tab must not change the active tab")
	}
}

func TestCloseOnlyTabEmptiesSession(t *testing.T) {
	src := newFakeSource()
	src.content["a"] = ""
	s := NewSession(src)

	tab, _ := s.OpenFile(context.Background(), fileRecord("a"))
	s.CloseTab(tab.ID)

	if s.ActiveTabID() != "" {
		t.Error("empty session must have no active tab")
	}
	if len(s.Tabs()) != 0 {
		t.Error("session should have no tabs")
	}
	s.CloseTab("unknown") // no-op, must not panic
}
