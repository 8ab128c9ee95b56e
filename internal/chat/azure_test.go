package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAzureClientAccumulatesStream(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("api-key")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	client := NewAzureClient(AzureConfig{APIKey: "k", BaseURL: ts.URL})

	var deltas []string
	reply, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "Hello" {
		t.Fatalf("reply = %q, want %q", reply, "Hello")
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas = %v, want two fragments", deltas)
	}
	if gotAuth != "k" {
		t.Fatalf("api-key header = %q, want %q", gotAuth, "k")
	}
}

func TestAzureClientReportsUpstreamStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewAzureClient(AzureConfig{APIKey: "k", BaseURL: ts.URL})
	_, err := client.Complete(context.Background(), nil, nil)
	if err == nil {
		t.Fatalf("Complete() error = nil, want status error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error = %v, want status code mentioned", err)
	}
}

func TestAzureClientRequestURL(t *testing.T) {
	client := NewAzureClient(AzureConfig{
		Endpoint:   "https://example.openai.azure.com/",
		Deployment: "gpt-4o",
		APIVersion: "2024-02-15-preview",
	})
	want := "https://example.openai.azure.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-15-preview"
	if got := client.requestURL(); got != want {
		t.Fatalf("requestURL = %q, want %q", got, want)
	}
}

func TestMockCompleterEchoesLastUserTurn(t *testing.T) {
	m := NewMockCompleter()
	reply, err := m.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: "second"},
	}, nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "You said: second" {
		t.Fatalf("reply = %q", reply)
	}
}
