package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	tokens := service.NewTokenIssuer("access", "refresh")
	mw := NewAuthMiddleware(tokens, zap.NewNop())

	handler := mw.Wrap(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/work-orders", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestAuthMiddleware_GarbageToken(t *testing.T) {
	tokens := service.NewTokenIssuer("access", "refresh")
	mw := NewAuthMiddleware(tokens, zap.NewNop())

	handler := mw.Wrap(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/work-orders", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_ValidTokenInjectsActor(t *testing.T) {
	tokens := service.NewTokenIssuer("access", "refresh")
	mw := NewAuthMiddleware(tokens, zap.NewNop())

	access, _, err := tokens.IssuePair(&domain.User{
		ID: "user-1", Email: "ana@example.com", Role: domain.RoleManager,
	})
	require.NoError(t, err)

	var seen service.Actor
	handler := mw.Wrap(func(w http.ResponseWriter, r *http.Request) {
		seen = actorFrom(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/work-orders", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", seen.ID)
	assert.Equal(t, domain.RoleManager, seen.Role)
}
