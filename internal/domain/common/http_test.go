package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrBadRequest, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", ErrNotFound), http.StatusNotFound},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrConflict, http.StatusConflict},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com","password":"x"}`))
		var body LoginRequest
		require.NoError(t, DecodeJSON(req, &body))
		assert.Equal(t, "a@b.com", body.Email)
	})

	t.Run("validation failure", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","password":""}`))
		var body LoginRequest
		err := DecodeJSON(req, &body)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBadRequest)
		assert.Contains(t, err.Error(), "Email failed email")
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com","password":"x","extra":1}`))
		var body LoginRequest
		assert.ErrorIs(t, DecodeJSON(req, &body), ErrBadRequest)
	})
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("%w: missing client", ErrBadRequest))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "missing client")
}

func TestRole(t *testing.T) {
	assert.True(t, RoleCRMAdmin.Valid())
	assert.False(t, Role("owner").Valid())
	assert.True(t, RoleClientAdmin.CanManageImports())
	assert.False(t, RoleClientUser.CanManageImports())
}

func TestWriteStatus_HidesServerErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteStatus(rec, http.StatusInternalServerError, errors.New("pq: relation accounts does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestClaims_ClientScope(t *testing.T) {
	clientID := uuid.New()
	other := uuid.New()

	admin := &Claims{Role: RoleCRMAdmin}
	assert.Nil(t, admin.ClientScope())
	assert.True(t, admin.CanAccessClient(other))

	scoped := &Claims{Role: RoleClientAdmin, ClientID: clientID.String()}
	assert.Equal(t, clientID, *scoped.ClientScope())
	assert.True(t, scoped.CanAccessClient(clientID))
	assert.False(t, scoped.CanAccessClient(other))

	orphan := &Claims{Role: RoleClientUser}
	assert.False(t, orphan.CanAccessClient(other))
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	uid := uuid.New()
	ctx := WithClaims(context.Background(), &Claims{UserID: uid.String(), Role: RoleSiteAdmin})
	c, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, uid, *c.UserUUID())
	assert.Nil(t, (&Claims{UserID: "nope"}).UserUUID())
}
