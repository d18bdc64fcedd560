package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/driftpad/driftpad/internal/assistant"
	"github.com/driftpad/driftpad/pkg/protocol"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{
			name:     "not found",
			err:      &protocol.NotFoundError{Resource: "file", ID: "abc"},
			wantCode: http.StatusNotFound,
			wantKind: protocol.KindNotFound,
		},
		{
			name:     "validation",
			err:      &protocol.ValidationError{Field: "name", Reason: "empty"},
			wantCode: http.StatusBadRequest,
			wantKind: protocol.KindValidation,
		},
		{
			name:     "persistence",
			err:      &protocol.PersistenceError{Op: "save", ID: "abc", Err: errors.New("boom")},
			wantCode: http.StatusInternalServerError,
			wantKind: protocol.KindPersistence,
		},
		{
			name:     "fetch",
			err:      &protocol.FetchError{FileID: "abc", Err: errors.New("timeout")},
			wantCode: http.StatusBadGateway,
			wantKind: protocol.KindFetch,
		},
		{
			name:     "wrapped typed error",
			err:      fmt.Errorf("load record: %w", &protocol.NotFoundError{Resource: "file", ID: "x"}),
			wantCode: http.StatusNotFound,
			wantKind: protocol.KindNotFound,
		},
		{
			name:     "daily limit",
			err:      assistant.ErrDailyLimit,
			wantCode: http.StatusTooManyRequests,
			wantKind: "",
		},
		{
			name:     "unknown",
			err:      errors.New("something else"),
			wantCode: http.StatusInternalServerError,
			wantKind: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, kind := statusForError(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", kind, tt.wantKind)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"main.go", "readme", "src", ".gitignore", "a b c.txt"}
	for _, name := range valid {
		if err := validateName(name); err != nil {
			t.Errorf("validateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", ".", "..", "a/b", "a\\b", string(make([]byte, 300))}
	for _, name := range invalid {
		if err := validateName(name); err == nil {
			t.Errorf("validateName(%q) = nil, want error", name)
		}
	}
}

func TestExtensionOf(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"main.go", "go"},
		{"index.HTML", "html"},
		{"archive.tar.gz", "gz"},
		{"README", ""},
		{"trailing.", ""},
		{".gitignore", "gitignore"},
	}
	for _, tt := range tests {
		if got := extensionOf(tt.name); got != tt.want {
			t.Errorf("extensionOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header     string
		wantOffset int64
		wantLength int64
	}{
		{"", 0, 0},
		{"bytes=0-99", 0, 100},
		{"bytes=100-199", 100, 100},
		{"bytes=50-", 50, 0},
		{"bytes=garbage", 0, 0},
		{"items=0-9", 0, 0},
		{"bytes=20-10", 20, 0},
	}
	for _, tt := range tests {
		offset, length := parseRange(tt.header)
		if offset != tt.wantOffset || length != tt.wantLength {
			t.Errorf("parseRange(%q) = (%d, %d), want (%d, %d)",
				tt.header, offset, length, tt.wantOffset, tt.wantLength)
		}
	}
}

func TestOptionalLimit(t *testing.T) {
	if got := optionalLimit(0); got != nil {
		t.Errorf("optionalLimit(0) = %v, want nil", got)
	}
	if got := optionalLimit(-5); got != nil {
		t.Errorf("optionalLimit(-5) = %v, want nil", got)
	}
	if got := optionalLimit(60); got == nil || *got != 60 {
		t.Errorf("optionalLimit(60) = %v, want pointer to 60", got)
	}
}
