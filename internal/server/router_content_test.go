package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/taskforge-io/taskforge/internal/pages"
)

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	admin := e.signup(t, "Root", "root@example.com", "hunter2secret")
	e.promoteToAdmin(t, admin.ID)
	return e.signin(t, "root@example.com", "hunter2secret")
}

func TestContentUpsertAndPublicRead(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	empty := env.perform(t, http.MethodGet, "/api/v1/content", "", nil)
	if empty.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", empty.Code)
	}

	upsert := env.perform(t, http.MethodPut, "/api/v1/admin/content/hero", adminToken,
		map[string]string{"headline": "Welcome"})
	if upsert.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", upsert.Code, upsert.Body.String())
	}

	read := env.perform(t, http.MethodGet, "/api/v1/content", "", nil)
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(decodeEnvelope(t, read).Data, &sections); err != nil {
		t.Fatalf("failed to decode content: %v", err)
	}
	if _, ok := sections["hero"]; !ok {
		t.Fatalf("expected hero section after upsert, got %v", sections)
	}

	replace := env.perform(t, http.MethodPut, "/api/v1/admin/content/hero", adminToken,
		map[string]string{"headline": "Updated"})
	if replace.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", replace.Code)
	}

	reread := env.perform(t, http.MethodGet, "/api/v1/content", "", nil)
	if err := json.Unmarshal(decodeEnvelope(t, reread).Data, &sections); err != nil {
		t.Fatalf("failed to decode content: %v", err)
	}
	var hero map[string]string
	if err := json.Unmarshal(sections["hero"], &hero); err != nil {
		t.Fatalf("failed to decode section: %v", err)
	}
	if hero["headline"] != "Updated" {
		t.Fatalf("expected cache bust to surface the update, got %q", hero["headline"])
	}
}

func TestContentUpsertRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	recorder := env.performRaw(t, http.MethodPut, "/api/v1/admin/content/hero", adminToken, "{broken")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestPageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	created := env.perform(t, http.MethodPost, "/api/v1/admin/pages", adminToken, map[string]string{
		"title":   "About",
		"path":    "about",
		"content": "who we are",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}
	var page pages.Page
	if err := json.Unmarshal(decodeEnvelope(t, created).Data, &page); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	if page.Path != "/about" {
		t.Fatalf("expected normalized path /about, got %q", page.Path)
	}
	if page.Published {
		t.Fatalf("expected new page to start unpublished")
	}

	duplicate := env.perform(t, http.MethodPost, "/api/v1/admin/pages", adminToken, map[string]string{
		"title": "Duplicate",
		"path":  "/about",
	})
	if duplicate.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for taken path, got %d", duplicate.Code)
	}

	// Unpublished pages stay off the public listing.
	public := env.perform(t, http.MethodGet, "/api/v1/pages", "", nil)
	var listing []pages.Page
	if err := json.Unmarshal(decodeEnvelope(t, public).Data, &listing); err != nil {
		t.Fatalf("failed to decode pages: %v", err)
	}
	if len(listing) != 0 {
		t.Fatalf("expected empty public listing, got %d", len(listing))
	}

	published := true
	publish := env.perform(t, http.MethodPut, "/api/v1/admin/pages/"+page.ID, adminToken, map[string]any{
		"published": published,
	})
	if publish.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", publish.Code, publish.Body.String())
	}

	public = env.perform(t, http.MethodGet, "/api/v1/pages", "", nil)
	if err := json.Unmarshal(decodeEnvelope(t, public).Data, &listing); err != nil {
		t.Fatalf("failed to decode pages: %v", err)
	}
	if len(listing) != 1 {
		t.Fatalf("expected one published page, got %d", len(listing))
	}

	deleted := env.perform(t, http.MethodDelete, "/api/v1/admin/pages/"+page.ID, adminToken, nil)
	if deleted.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", deleted.Code)
	}
	missing := env.perform(t, http.MethodDelete, "/api/v1/admin/pages/"+page.ID, adminToken, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestPageSections(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	created := env.perform(t, http.MethodPost, "/api/v1/admin/pages", adminToken, map[string]string{
		"title": "Landing",
		"path":  "/landing",
	})
	var page pages.Page
	if err := json.Unmarshal(decodeEnvelope(t, created).Data, &page); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}

	upsert := env.perform(t, http.MethodPut, "/api/v1/admin/pages/"+page.ID+"/content/intro", adminToken,
		map[string]string{"text": "hello"})
	if upsert.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", upsert.Code, upsert.Body.String())
	}

	read := env.perform(t, http.MethodGet, "/api/v1/pages/"+page.ID+"/content", "", nil)
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(decodeEnvelope(t, read).Data, &sections); err != nil {
		t.Fatalf("failed to decode sections: %v", err)
	}
	if _, ok := sections["intro"]; !ok {
		t.Fatalf("expected intro section, got %v", sections)
	}

	unknown := env.perform(t, http.MethodPut, "/api/v1/admin/pages/no-such-page/content/intro", adminToken,
		map[string]string{"text": "hello"})
	if unknown.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown page, got %d", unknown.Code)
	}

	unknownRead := env.perform(t, http.MethodGet, "/api/v1/pages/no-such-page/content", "", nil)
	if unknownRead.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", unknownRead.Code)
	}
}
