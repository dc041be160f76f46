package models

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/repos/testutil"
)

func TestVisualClientEmbedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed_text" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Text != "red car at night" {
			t.Errorf("text = %q", req.Text)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()
	t.Setenv("CLIP_HOST_URL", srv.URL)

	client := NewVisualModelClient(testutil.Logger(t))
	vec, err := client.EmbedText(context.Background(), "red car at night")
	if err != nil {
		t.Fatalf("embed text: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected embedding: %v", vec)
	}
}

func TestHostStillLoadingMapsToModelNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	t.Setenv("CLIP_HOST_URL", srv.URL)

	client := NewVisualModelClient(testutil.Logger(t))
	_, err := client.EmbedText(context.Background(), "anything")
	if !errors.Is(err, errdefs.ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
}

func TestHostUnreachableMapsToModelNotReady(t *testing.T) {
	// Point at a port nothing listens on.
	t.Setenv("CLIP_HOST_URL", "http://127.0.0.1:1")

	client := NewVisualModelClient(testutil.Logger(t))
	if err := client.Ready(context.Background()); !errors.Is(err, errdefs.ErrModelNotReady) {
		t.Fatalf("Ready: expected ErrModelNotReady, got %v", err)
	}
	if _, err := client.EmbedText(context.Background(), "x"); !errors.Is(err, errdefs.ErrModelNotReady) {
		t.Fatalf("EmbedText: expected ErrModelNotReady, got %v", err)
	}
}

func TestHostServerErrorMapsToTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("CLIP_HOST_URL", srv.URL)

	client := NewVisualModelClient(testutil.Logger(t))
	_, err := client.EmbedText(context.Background(), "x")
	if !errors.Is(err, errdefs.ErrStageTransient) {
		t.Fatalf("expected ErrStageTransient, got %v", err)
	}
}

func TestHostClientErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()
	t.Setenv("CLIP_HOST_URL", srv.URL)

	client := NewVisualModelClient(testutil.Logger(t))
	_, err := client.EmbedText(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	// A 4xx is neither transient nor a readiness problem; retrying the same
	// payload would fail the same way.
	if errors.Is(err, errdefs.ErrStageTransient) || errors.Is(err, errdefs.ErrModelNotReady) {
		t.Fatalf("4xx misclassified: %v", err)
	}
}

func TestReadyOKAndReadinessMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	t.Setenv("CLIP_HOST_URL", srv.URL)

	client := NewVisualModelClient(testutil.Logger(t))
	if err := client.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
}
