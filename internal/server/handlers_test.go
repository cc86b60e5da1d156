package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mneme-app/mneme/internal/remote"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := OpenStore(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewHandler(st, nil).Router())
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})
	return srv
}

func request(t *testing.T, srv *httptest.Server, method, path, device string, body any) (*http.Response, responseEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if device != "" {
		req.Header.Set("X-Device-ID", device)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	var env responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	return resp, env
}

func decodeData(t *testing.T, env responseEnvelope, out any) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatal(err)
	}
}

func TestMissingDeviceHeaderRejected(t *testing.T) {
	srv := testServer(t)
	resp, env := request(t, srv, http.MethodGet, "/chats", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if env.Success {
		t.Error("envelope success on auth failure")
	}
}

func TestChatLifecycle(t *testing.T) {
	srv := testServer(t)

	resp, env := request(t, srv, http.MethodPost, "/chats", "dev-1",
		remote.Chat{Name: "Notes", CreatedAt: 100, UpdatedAt: 100})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, env.Error)
	}
	var created remote.Chat
	decodeData(t, env, &created)
	if created.ID == "" {
		t.Fatal("no server id assigned")
	}
	if created.CreatedAt != 100 {
		t.Errorf("createdAt = %d, client value not preserved", created.CreatedAt)
	}

	resp, env = request(t, srv, http.MethodPut, "/chats/"+created.ID, "dev-1",
		remote.Chat{Name: "Renamed", IsPinned: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	var updated remote.Chat
	decodeData(t, env, &updated)
	if updated.Name != "Renamed" || !updated.IsPinned {
		t.Errorf("updated = %+v", updated)
	}
	if updated.UpdatedAt <= 100 {
		t.Error("server did not stamp updatedAt")
	}

	// Tombstone push; the listing keeps the record, flagged.
	resp, _ = request(t, srv, http.MethodPut, "/chats/"+created.ID, "dev-1",
		remote.Chat{Name: "Renamed", IsDeleted: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tombstone status = %d", resp.StatusCode)
	}
	_, env = request(t, srv, http.MethodGet, "/chats", "dev-1", nil)
	var list []remote.Chat
	decodeData(t, env, &list)
	if len(list) != 1 {
		t.Fatalf("list length = %d, tombstones must be included", len(list))
	}
	if !list[0].IsDeleted || list[0].DeletedAt == nil {
		t.Errorf("tombstone not flagged: %+v", list[0])
	}
}

func TestChatValidation(t *testing.T) {
	srv := testServer(t)

	resp, _ := request(t, srv, http.MethodPost, "/chats", "dev-1",
		remote.Chat{Name: strings.Repeat("x", 200)})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("oversize name status = %d, want 422", resp.StatusCode)
	}
	resp, _ = request(t, srv, http.MethodPost, "/chats", "dev-1", remote.Chat{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("empty name status = %d, want 422", resp.StatusCode)
	}
}

func TestMessagesScopedToOwner(t *testing.T) {
	srv := testServer(t)

	_, env := request(t, srv, http.MethodPost, "/chats", "dev-1", remote.Chat{Name: "Mine"})
	var chat remote.Chat
	decodeData(t, env, &chat)

	resp, env := request(t, srv, http.MethodPost, "/chats/"+chat.ID+"/messages", "dev-1",
		remote.Message{Type: "text", Content: strp("hello")})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create message status = %d: %s", resp.StatusCode, env.Error)
	}

	// Another device cannot post into or see this chat.
	resp, _ = request(t, srv, http.MethodPost, "/chats/"+chat.ID+"/messages", "dev-2",
		remote.Message{Type: "text", Content: strp("intruder")})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-device post status = %d, want 404", resp.StatusCode)
	}
	_, env = request(t, srv, http.MethodGet, "/messages", "dev-2", nil)
	var msgs []remote.Message
	decodeData(t, env, &msgs)
	if len(msgs) != 0 {
		t.Errorf("device 2 sees %d foreign messages", len(msgs))
	}
}

func TestMessagesSinceFilter(t *testing.T) {
	srv := testServer(t)

	_, env := request(t, srv, http.MethodPost, "/chats", "dev-1", remote.Chat{Name: "Inc"})
	var chat remote.Chat
	decodeData(t, env, &chat)

	_, env = request(t, srv, http.MethodPost, "/chats/"+chat.ID+"/messages", "dev-1",
		remote.Message{Type: "text", Content: strp("first")})
	var first remote.Message
	decodeData(t, env, &first)

	_, env = request(t, srv, http.MethodGet, "/messages?since=0", "dev-1", nil)
	var all []remote.Message
	decodeData(t, env, &all)
	if len(all) != 1 {
		t.Fatalf("full pull = %d messages, want 1", len(all))
	}

	path := "/messages?since=" + strconv.FormatInt(first.UpdatedAt, 10)
	_, env = request(t, srv, http.MethodGet, path, "dev-1", nil)
	var none []remote.Message
	decodeData(t, env, &none)
	if len(none) != 0 {
		t.Errorf("incremental pull = %d messages, want 0", len(none))
	}
}

func TestUserProfileRoutes(t *testing.T) {
	srv := testServer(t)

	resp, _ := request(t, srv, http.MethodGet, "/users/me", "dev-1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unset profile status = %d, want 404", resp.StatusCode)
	}

	resp, env := request(t, srv, http.MethodPut, "/users/me", "dev-1",
		remote.User{DeviceID: "dev-1", Name: "Me"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put profile status = %d: %s", resp.StatusCode, env.Error)
	}
	var saved remote.User
	decodeData(t, env, &saved)
	if saved.ID == "" || saved.Name != "Me" {
		t.Errorf("saved = %+v", saved)
	}

	resp, env = request(t, srv, http.MethodGet, "/users/me", "dev-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get profile status = %d", resp.StatusCode)
	}
	var got remote.User
	decodeData(t, env, &got)
	if got.ID != saved.ID {
		t.Errorf("profile id changed across requests")
	}
}

func strp(s string) *string { return &s }
