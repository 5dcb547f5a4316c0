package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftflow-backend/pkg/auth"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
)

type tokenTable map[string]auth.Identity

func (t tokenTable) Verify(raw string) (auth.Identity, error) {
	if id, ok := t[raw]; ok {
		return id, nil
	}
	return auth.Identity{}, errors.New("unknown token")
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	customer := auth.Identity{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	tokens := tokenTable{"good": customer}

	var seen auth.Identity
	h := Authenticate(tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
	}))

	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
		{"bearer good", http.StatusOK},
		{"good", http.StatusOK},
	}
	for _, tc := range cases {
		seen = auth.Identity{}
		rec := serve(h, tc.header)
		require.Equal(t, tc.status, rec.Code, "header %q", tc.header)
		if tc.status == http.StatusOK {
			require.Equal(t, customer, seen)
		}
	}
}

func TestAuthenticateWithRealTokens(t *testing.T) {
	h := Authenticate(mustTokens(t, "giftflow"), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	userID := uuid.New()

	require.Equal(t, http.StatusOK, serve(h, "Bearer "+issue(t, mustTokens(t, "giftflow"), userID)).Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, "Bearer "+issue(t, mustTokens(t, "elsewhere"), userID)).Code)
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	run := func(id *auth.Identity) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if id != nil {
			req = req.WithContext(WithCaller(req.Context(), *id))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusForbidden, run(nil))
	require.Equal(t, http.StatusForbidden, run(&auth.Identity{UserID: uuid.New(), Role: enums.UserRoleCustomer}))
	require.Equal(t, http.StatusNoContent, run(&auth.Identity{UserID: uuid.New(), Role: enums.UserRoleAdmin}))
}

func mustTokens(t *testing.T, issuer string) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens(config.JWTConfig{Secret: "secret", Issuer: issuer, ExpirationMinutes: 5})
	require.NoError(t, err)
	return tokens
}

func issue(t *testing.T, tokens *auth.Tokens, userID uuid.UUID) string {
	t.Helper()
	raw, err := tokens.Issue(auth.Identity{UserID: userID, Role: enums.UserRoleCustomer})
	require.NoError(t, err)
	return raw
}
