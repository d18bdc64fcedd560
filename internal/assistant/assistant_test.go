package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/driftpad/driftpad/pkg/protocol"
)

func TestBuildPromptActions(t *testing.T) {
	for _, action := range []string{ActionChat, ActionExplain, ActionRefactor, ActionFix, ActionGenerate} {
		sys, user, err := BuildPrompt(&protocol.AssistantRequest{Action: action, Message: "hi"})
		if err != nil {
			t.Errorf("%s: %v", action, err)
		}
		if sys == "" || user != "hi" {
			t.Errorf("%s: sys=%q user=%q", action, sys, user)
		}
	}
}

func TestBuildPromptUnknownAction(t *testing.T) {
	_, _, err := BuildPrompt(&protocol.AssistantRequest{Action: "summon", Message: "x"})
	var verr *protocol.ValidationError
	if err == nil {
		t.Fatal("expected error")
	}
	if !asValidation(err, &verr) || verr.Field != "action" {
		t.Errorf("err = %v", err)
	}
}

func TestBuildPromptEmpty(t *testing.T) {
	_, _, err := BuildPrompt(&protocol.AssistantRequest{Action: ActionChat})
	if err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestBuildPromptCodeFence(t *testing.T) {
	_, user, err := BuildPrompt(&protocol.AssistantRequest{
		Action:   ActionExplain,
		Message:  "what does this do?",
		Code:     "let x = 1",
		Language: "javascript",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(user, "what does this do?") {
		t.Errorf("missing message in %q", user)
	}
	if !strings.Contains(user, "```javascript\nlet x = 1\n```") {
		t.Errorf("missing fenced code in %q", user)
	}
}

func asValidation(err error, target **protocol.ValidationError) bool {
	v, ok := err.(*protocol.ValidationError)
	if ok {
		*target = v
	}
	return ok
}

func TestOpenAIComplete(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "sure thing"}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "sk-test", "test-model")
	reply, err := p.Complete(context.Background(), "be helpful", "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "sure thing" {
		t.Errorf("reply = %q", reply)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "be helpful" {
		t.Errorf("system message = %+v", gotReq.Messages[0])
	}
}

func TestOpenAICompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "quota exceeded"},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "sk-test", "test-model")
	_, err := p.Complete(context.Background(), "sys", "user")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "sk-test", "test-model")
	if _, err := p.Complete(context.Background(), "sys", "user"); err == nil {
		t.Error("expected error for empty choices")
	}
}
