package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	want := model.Principal{UserID: "donor-42", Role: model.RoleDonor}

	token, err := m.IssueToken(want, time.Hour)
	require.NoError(t, err)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok, "principal not in context")
		assert.Equal(t, want, p)
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, nextCalled, "next handler was not called")
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	foreign, err := other.IssueToken(model.Principal{UserID: "u1", Role: model.RoleDonor}, time.Hour)
	require.NoError(t, err)
	expired, err := m.IssueToken(model.Principal{UserID: "u1", Role: model.RoleDonor}, -time.Minute)
	require.NoError(t, err)
	noRole, err := m.IssueToken(model.Principal{UserID: "u1", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
		{"foreign signature", "Bearer " + foreign},
		{"expired", "Bearer " + expired},
		{"unknown role", "Bearer " + noRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestNewAuthMiddleware_EmptySecretStillSigns(t *testing.T) {
	m := NewAuthMiddleware("")
	token, err := m.IssueToken(model.Principal{UserID: "h1", Role: model.RoleMedicalInstitution}, time.Hour)
	require.NoError(t, err)

	p, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMedicalInstitution, p.Role)
}
