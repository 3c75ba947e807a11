package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
)

func TestNotifyRemoteAddReturnsRemoteInfo(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"displayName": "Bob Remote",
			"cloudId":     "bob@remote.example",
		})
	}))
	defer srv.Close()

	bridge := NewHTTPBridge(5*time.Second, WithInsecureHTTP())
	info, err := bridge.NotifyRemoteAdd(context.Background(), core.RemoteAddRequest{
		CloudID:      "bob@remote.example",
		AccessToken:  "tok",
		RemoteServer: strings.TrimPrefix(srv.URL, "http://"),
		RoomToken:    "room1",
		RoomName:     "Planning",
	})
	if err != nil {
		t.Fatalf("notify add: %v", err)
	}

	if gotPath != "/ocm/invites" {
		t.Fatalf("request path = %q", gotPath)
	}
	if gotBody["cloudId"] != "bob@remote.example" || gotBody["accessToken"] != "tok" {
		t.Fatalf("request body = %v", gotBody)
	}
	if info.DisplayName != "Bob Remote" || info.CloudID != "bob@remote.example" {
		t.Fatalf("remote info = %+v", info)
	}
}

func TestNotifyRemoteAddFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	bridge := NewHTTPBridge(5*time.Second, WithInsecureHTTP())
	_, err := bridge.NotifyRemoteAdd(context.Background(), core.RemoteAddRequest{
		RemoteServer: strings.TrimPrefix(srv.URL, "http://"),
	})
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}
}

func TestNotifyRemoteRemove(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bridge := NewHTTPBridge(5*time.Second, WithInsecureHTTP())
	err := bridge.NotifyRemoteRemove(context.Background(), core.RemoteRemoveRequest{
		AccessToken:  "tok",
		RemoteServer: strings.TrimPrefix(srv.URL, "http://"),
		RoomToken:    "room1",
	})
	if err != nil {
		t.Fatalf("notify remove: %v", err)
	}
	if gotPath != "/ocm/invites/remove" {
		t.Fatalf("request path = %q", gotPath)
	}
}

func TestNotifyRemoteAddUnreachableServer(t *testing.T) {
	bridge := NewHTTPBridge(200*time.Millisecond, WithInsecureHTTP())
	_, err := bridge.NotifyRemoteAdd(context.Background(), core.RemoteAddRequest{
		RemoteServer: "127.0.0.1:1",
	})
	if err == nil {
		t.Fatal("expected an error for an unreachable server")
	}
}
