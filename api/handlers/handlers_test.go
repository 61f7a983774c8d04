package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hub/realtime/internal/db"
	"github.com/taskflow-hub/realtime/internal/devhub"
	"github.com/taskflow-hub/realtime/internal/repository"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	service := devhub.NewService(repository.NewNotificationRepository(database), false, zerolog.Nop())
	t.Cleanup(service.Close)

	r := gin.New()
	api := r.Group("/api")
	NewHubHandler(service, zerolog.Nop()).RegisterRoutes(r, api)
	NewNotificationHandler(service).RegisterRoutes(api)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := setupRouter(t)
	w := do(r, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["clients"])
}

func TestHubRequiresToken(t *testing.T) {
	r := setupRouter(t)
	w := do(r, http.MethodGet, "/hub", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndListNotifications(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/api/notifications", map[string]string{
		"type":   "mention",
		"title":  "You were mentioned",
		"userId": "u1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created NotificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "medium", created.Priority)
	require.NotNil(t, created.Delivered)
	assert.Equal(t, 0, *created.Delivered)

	w = do(r, http.MethodGet, "/api/notifications?userId=u1&unread=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listed []NotificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	assert.False(t, listed[0].IsRead)
}

func TestNotificationValidation(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"missing title", http.MethodPost, "/api/notifications", map[string]string{"type": "mention", "userId": "u1"}},
		{"bad priority", http.MethodPost, "/api/notifications", map[string]string{"type": "mention", "title": "x", "userId": "u1", "priority": "whenever"}},
		{"missing user", http.MethodGet, "/api/notifications", nil},
		{"bad unread flag", http.MethodGet, "/api/notifications?userId=u1&unread=maybe", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		})
	}
}

func TestPushMessage(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/api/messages", map[string]any{
		"target":  "SystemMessage",
		"payload": map[string]string{"text": "hello"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp PushMessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Delivered)

	w = do(r, http.MethodPost, "/api/messages", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
