package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/printworks/relay/internal/supplier"
)

// pickupHandler mimics the pickup endpoint: serves one parked document per
// request until the cache is drained, then answers 204.
func pickupHandler(cache *ProxyCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := cache.Take(r.URL.Query().Get("account"), r.URL.Query().Get("node"))
		if doc == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(ParkedDocument{Document: doc.Document, Payload: doc.Payload})
	}
}

func TestFetchParkedDocument(t *testing.T) {
	cache := NewProxyCache()
	cache.Put("school-a", "south", &supplier.Document{
		ID:        "d1",
		Name:      "essay.pdf",
		Pages:     3,
		Requester: "alice",
	}, []byte("payload"))

	srv := httptest.NewServer(pickupHandler(cache))
	defer srv.Close()

	client := NewProxyClient(0)

	parked, err := client.Fetch(context.Background(), srv.URL, "school-a", "south")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if parked == nil {
		t.Fatal("expected a parked document")
	}
	if parked.Document.ID != "d1" || parked.Document.Pages != 3 || parked.Document.Requester != "alice" {
		t.Errorf("document metadata mangled: %+v", parked.Document)
	}
	if string(parked.Payload) != "payload" {
		t.Errorf("payload mangled: %q", parked.Payload)
	}

	parked, err = client.Fetch(context.Background(), srv.URL, "school-a", "south")
	if err != nil {
		t.Fatalf("drained Fetch failed: %v", err)
	}
	if parked != nil {
		t.Errorf("drained cache must yield nil, got %+v", parked)
	}
}

func TestFetchUnreachablePeer(t *testing.T) {
	client := NewProxyClient(0)
	if _, err := client.Fetch(context.Background(), "http://127.0.0.1:1", "school-a", "south"); err == nil {
		t.Errorf("expected error for unreachable peer")
	}
}
