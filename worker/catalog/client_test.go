package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(serverURL+"/store", serverURL, "pk_test", "admin@example.com", "secret", 5*time.Second, zaptest.NewLogger(t))
}

func TestClient_Authenticate_CachesToken(t *testing.T) {
	authCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/user/emailpass" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		authCalls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	for i := 0; i < 3; i++ {
		token, err := c.Authenticate(context.Background())
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if token != "tok-1" {
			t.Errorf("Expected tok-1, got %q", token)
		}
	}

	if authCalls != 1 {
		t.Errorf("Expected a single auth round trip, got %d", authCalls)
	}
}

func TestClient_Authenticate_ExpiredTokenRefetched(t *testing.T) {
	authCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCalls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-new"})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	c.token = "tok-old"
	c.tokenExpiry = time.Now().Add(-time.Minute)

	token, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if token != "tok-new" {
		t.Errorf("Expected refreshed token, got %q", token)
	}
	if authCalls != 1 {
		t.Errorf("Expected one auth round trip, got %d", authCalls)
	}
}

func TestClient_Authenticate_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.Authenticate(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Expected ErrAuthFailed, got %v", err)
	}
}

func TestClient_GetProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-publishable-api-key") != "pk_test" {
			t.Errorf("Missing publishable key header")
		}
		if r.URL.Path != "/store/products/prod_1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"product": map[string]interface{}{
				"id":    "prod_1",
				"title": "Widget",
				"images": []map[string]string{
					{"url": "https://cdn.example/a.jpg"},
				},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	product, err := c.GetProduct(context.Background(), "prod_1")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if product.Title != "Widget" || len(product.Images) != 1 {
		t.Errorf("Unexpected product %+v", product)
	}

	_, err = c.GetProduct(context.Background(), "prod_missing")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestClient_ReplaceProductImages(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/user/emailpass":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		case "/admin/products/prod_1":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Errorf("Missing bearer token, got %q", r.Header.Get("Authorization"))
			}
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	urls := []string{"https://cdn.example/p/p-thumbnail.jpg", "https://cdn.example/p/p-image1.jpg"}
	if err := c.ReplaceProductImages(context.Background(), "prod_1", urls[0], urls); err != nil {
		t.Fatalf("ReplaceProductImages failed: %v", err)
	}

	if gotBody["thumbnail"] != urls[0] {
		t.Errorf("Expected thumbnail in body, got %v", gotBody["thumbnail"])
	}
	if gotBody["status"] != "published" {
		t.Errorf("Expected product flipped to published, got %v", gotBody["status"])
	}
	images, ok := gotBody["images"].([]interface{})
	if !ok || len(images) != 2 {
		t.Errorf("Expected 2 images in body, got %v", gotBody["images"])
	}
}
