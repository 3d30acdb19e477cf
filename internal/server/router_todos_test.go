package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/taskforge-io/taskforge/internal/notifications"
	"github.com/taskforge-io/taskforge/internal/todos"
	"github.com/taskforge-io/taskforge/internal/users"
)

func (e *testEnv) createTodo(t *testing.T, token, title, content string, collaborators []string) todos.Todo {
	t.Helper()
	recorder := e.perform(t, http.MethodPost, "/api/v1/todos", token, map[string]any{
		"title":         title,
		"content":       content,
		"collaborators": collaborators,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var todo todos.Todo
	if err := json.Unmarshal(decodeEnvelope(t, recorder).Data, &todo); err != nil {
		t.Fatalf("failed to decode todo: %v", err)
	}
	return todo
}

func TestTodoCreateAndList(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	token := env.signin(t, "avery@example.com", "hunter2secret")

	env.createTodo(t, token, "Write report", "quarterly numbers", nil)
	env.createTodo(t, token, "Book travel", "", nil)

	recorder := env.perform(t, http.MethodGet, "/api/v1/todos?page=1&limit=1", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeEnvelope(t, recorder)
	if body.Pagination == nil {
		t.Fatalf("expected pagination payload")
	}
	if body.Pagination.TotalItems != 2 {
		t.Fatalf("expected 2 total items, got %d", body.Pagination.TotalItems)
	}
	if body.Pagination.NextPage == nil || *body.Pagination.NextPage != 2 {
		t.Fatalf("expected next page 2, got %v", body.Pagination.NextPage)
	}
}

func TestTodoCreateRequiresTitle(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	token := env.signin(t, "avery@example.com", "hunter2secret")

	recorder := env.perform(t, http.MethodPost, "/api/v1/todos", token, map[string]string{"title": "  "})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestTodoListCacheInvalidatedByMutation(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	token := env.signin(t, "avery@example.com", "hunter2secret")

	env.createTodo(t, token, "First", "", nil)
	if recorder := env.perform(t, http.MethodGet, "/api/v1/todos", token, nil); recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	env.createTodo(t, token, "Second", "", nil)
	recorder := env.perform(t, http.MethodGet, "/api/v1/todos", token, nil)
	body := decodeEnvelope(t, recorder)
	if body.Pagination == nil || body.Pagination.TotalItems != 2 {
		t.Fatalf("expected fresh listing after create, got %s", recorder.Body.String())
	}
}

func TestTodoUpdateByStrangerYieldsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	env.signup(t, "Blair", "blair@example.com", "hunter2secret")
	ownerToken := env.signin(t, "avery@example.com", "hunter2secret")
	strangerToken := env.signin(t, "blair@example.com", "hunter2secret")

	todo := env.createTodo(t, ownerToken, "Private", "", nil)

	recorder := env.perform(t, http.MethodPut, "/api/v1/todos/"+todo.ID, strangerToken, map[string]string{
		"title": "hijacked",
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger, got %d", recorder.Code)
	}
}

func TestCollaboratorCanUpdateAndOwnerIsNotified(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	collaborator := env.signup(t, "Blair", "blair@example.com", "hunter2secret")
	ownerToken := env.signin(t, "avery@example.com", "hunter2secret")
	collaboratorToken := env.signin(t, "blair@example.com", "hunter2secret")

	todo := env.createTodo(t, ownerToken, "Shared work", "", []string{collaborator.ID})

	recorder := env.perform(t, http.MethodPut, "/api/v1/todos/"+todo.ID, collaboratorToken, map[string]any{
		"completed": true,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var ownerNotifications []notifications.Notification
	if err := env.db.Where("user_id = ?", owner.ID).Find(&ownerNotifications).Error; err != nil {
		t.Fatalf("failed to list notifications: %v", err)
	}
	if len(ownerNotifications) != 1 {
		t.Fatalf("expected one owner notification, got %d", len(ownerNotifications))
	}
}

func TestCollaboratorReceivesNotificationOnShare(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	collaborator := env.signup(t, "Blair", "blair@example.com", "hunter2secret")
	ownerToken := env.signin(t, "avery@example.com", "hunter2secret")
	collaboratorToken := env.signin(t, "blair@example.com", "hunter2secret")

	todo := env.createTodo(t, ownerToken, "Joint effort", "", nil)

	recorder := env.perform(t, http.MethodPost, "/api/v1/todos/"+todo.ID+"/collaborators", ownerToken, map[string]string{
		"user_id": collaborator.ID,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	listing := env.perform(t, http.MethodGet, "/api/v1/notifications", collaboratorToken, nil)
	var records []notifications.Notification
	if err := json.Unmarshal(decodeEnvelope(t, listing).Data, &records); err != nil {
		t.Fatalf("failed to decode notifications: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one notification, got %d", len(records))
	}
	if records[0].TodoID == nil || *records[0].TodoID != todo.ID {
		t.Fatalf("expected notification bound to todo %s", todo.ID)
	}

	duplicate := env.perform(t, http.MethodPost, "/api/v1/todos/"+todo.ID+"/collaborators", ownerToken, map[string]string{
		"user_id": collaborator.ID,
	})
	if duplicate.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate grant, got %d", duplicate.Code)
	}
}

func TestTodoDeleteIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	collaborator := env.signup(t, "Blair", "blair@example.com", "hunter2secret")
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	ownerToken := env.signin(t, "avery@example.com", "hunter2secret")
	collaboratorToken := env.signin(t, "blair@example.com", "hunter2secret")

	todo := env.createTodo(t, ownerToken, "Doomed", "", []string{collaborator.ID})

	forbidden := env.perform(t, http.MethodDelete, "/api/v1/todos/"+todo.ID, collaboratorToken, nil)
	if forbidden.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for collaborator delete, got %d", forbidden.Code)
	}

	allowed := env.perform(t, http.MethodDelete, "/api/v1/todos/"+todo.ID, ownerToken, nil)
	if allowed.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", allowed.Code, allowed.Body.String())
	}

	missing := env.perform(t, http.MethodGet, "/api/v1/todos/"+todo.ID, ownerToken, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", missing.Code)
	}
}

func TestCommentFlow(t *testing.T) {
	env := newTestEnv(t)
	collaborator := env.signup(t, "Blair", "blair@example.com", "hunter2secret")
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	ownerToken := env.signin(t, "avery@example.com", "hunter2secret")
	collaboratorToken := env.signin(t, "blair@example.com", "hunter2secret")

	todo := env.createTodo(t, ownerToken, "Discussion", "", []string{collaborator.ID})

	created := env.perform(t, http.MethodPost, "/api/v1/todos/"+todo.ID+"/comments", collaboratorToken, map[string]string{
		"content": "looks good",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}

	listing := env.perform(t, http.MethodGet, "/api/v1/todos/"+todo.ID+"/comments", ownerToken, nil)
	var comments []todos.Comment
	if err := json.Unmarshal(decodeEnvelope(t, listing).Data, &comments); err != nil {
		t.Fatalf("failed to decode comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Content != "looks good" {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestMarkNotificationReadEnforcesOwnership(t *testing.T) {
	env := newTestEnv(t)
	collaborator := env.signup(t, "Blair", "blair@example.com", "hunter2secret")
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	env.signup(t, "Casey", "casey@example.com", "hunter2secret")
	ownerToken := env.signin(t, "avery@example.com", "hunter2secret")
	collaboratorToken := env.signin(t, "blair@example.com", "hunter2secret")
	outsiderToken := env.signin(t, "casey@example.com", "hunter2secret")

	env.createTodo(t, ownerToken, "Shared", "", []string{collaborator.ID})

	listing := env.perform(t, http.MethodGet, "/api/v1/notifications", collaboratorToken, nil)
	var records []notifications.Notification
	if err := json.Unmarshal(decodeEnvelope(t, listing).Data, &records); err != nil {
		t.Fatalf("failed to decode notifications: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one notification, got %d", len(records))
	}

	foreign := env.perform(t, http.MethodPut, "/api/v1/notifications/"+records[0].ID+"/read", outsiderToken, nil)
	if foreign.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign notification, got %d", foreign.Code)
	}

	owned := env.perform(t, http.MethodPut, "/api/v1/notifications/"+records[0].ID+"/read", collaboratorToken, nil)
	if owned.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", owned.Code)
	}
	var updated notifications.Notification
	if err := json.Unmarshal(decodeEnvelope(t, owned).Data, &updated); err != nil {
		t.Fatalf("failed to decode notification: %v", err)
	}
	if !updated.Read {
		t.Fatalf("expected notification to be read")
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	token := env.signin(t, "avery@example.com", "hunter2secret")

	recorder := env.perform(t, http.MethodGet, "/api/v1/admin/users", token, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", recorder.Code)
	}
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Root", "root@example.com", "hunter2secret")
	target := env.signup(t, "Avery", "avery@example.com", "hunter2secret")
	env.promoteToAdmin(t, admin.ID)
	adminToken := env.signin(t, "root@example.com", "hunter2secret")

	listing := env.perform(t, http.MethodGet, "/api/v1/admin/users?page=1&limit=10", adminToken, nil)
	if listing.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", listing.Code, listing.Body.String())
	}
	body := decodeEnvelope(t, listing)
	if body.Pagination == nil || body.Pagination.TotalItems != 2 {
		t.Fatalf("expected 2 users, got %s", listing.Body.String())
	}

	promote := env.perform(t, http.MethodPost, "/api/v1/admin/users/"+target.ID+"/promote", adminToken, nil)
	if promote.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", promote.Code)
	}
	var promoted users.PublicUser
	if err := json.Unmarshal(decodeEnvelope(t, promote).Data, &promoted); err != nil {
		t.Fatalf("failed to decode user: %v", err)
	}
	if promoted.Role != "ADMIN" {
		t.Fatalf("expected ADMIN role, got %q", promoted.Role)
	}

	suspend := env.perform(t, http.MethodPost, "/api/v1/admin/users/"+target.ID+"/suspend", adminToken, nil)
	if suspend.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", suspend.Code)
	}

	blocked := env.perform(t, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email":    "avery@example.com",
		"password": "hunter2secret",
	})
	if blocked.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for suspended signin, got %d", blocked.Code)
	}

	missing := env.perform(t, http.MethodPost, "/api/v1/admin/users/no-such-user/promote", adminToken, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}
