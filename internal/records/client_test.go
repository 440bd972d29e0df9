package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_CreatePostsIdea(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody Idea
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		gotBody.ID = "i1"
		gotBody.Status = StatusDraft
		_ = json.NewEncoder(w).Encode(gotBody)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	saved, err := c.Create(context.Background(), Idea{Title: "Build CLI", Summary: "a cli"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/ideas" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if saved.ID != "i1" || saved.Title != "Build CLI" {
		t.Fatalf("unexpected response: %+v", saved)
	}
}

func TestClient_UpdateRequiresID(t *testing.T) {
	c := NewClient("http://unused")
	if _, err := c.Update(context.Background(), Idea{Title: "x"}); err == nil {
		t.Fatal("update without id accepted")
	}
}

func TestClient_MoveHitsMoveEndpoint(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(Idea{ID: "i1", Status: gotBody["status"]})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Move(context.Background(), "i1", StatusExploring); err != nil {
		t.Fatalf("move: %v", err)
	}
	if gotPath != "/api/ideas/i1/move" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotBody["status"] != StatusExploring {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestClient_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Create(context.Background(), Idea{Title: "x"}); err == nil {
		t.Fatal("422 response accepted")
	}
}
