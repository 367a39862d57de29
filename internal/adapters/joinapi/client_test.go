package joinapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("devsecret"))
	require.NoError(t, err)
	return s
}

func TestRequestAccessDowngrade(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, exp)

	var got joinBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "s3cret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(grantBody{
			Room: got.Room, Name: got.Name, Role: "student", Token: token, WsURL: "wss://media.example",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "s3cret", time.Second)
	g, err := c.RequestAccess(context.Background(), core.JoinRequest{
		Room: "algebra-1", Name: "Ana", Role: domain.RoleTeacher,
	})
	require.NoError(t, err)
	assert.Equal(t, "teacher", got.Role)
	assert.Equal(t, "", got.TeacherKey)
	assert.Equal(t, domain.RoleStudent, g.Role)
	assert.Equal(t, domain.RoomName("algebra-1"), g.Room)
	assert.Equal(t, "Ana", g.Name)
	assert.Equal(t, "wss://media.example", g.URL)
	assert.True(t, exp.Equal(g.ExpiresAt))
}

func TestRequestAccessErrorShapes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string", http.StatusForbidden, `{"error":"room closed"}`, "room closed"},
		{"object", http.StatusUnauthorized, `{"error":{"code":"unauthorized","message":"bad secret"}}`, "bad secret"},
		{"empty", http.StatusInternalServerError, ``, "Join API failed (500)"},
		{"html", http.StatusBadGateway, `<html>oops</html>`, "Join API failed (502)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "", time.Second).RequestAccess(context.Background(), core.JoinRequest{Room: "r", Name: "n"})
			var rej *core.AuthRejectedError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tc.status, rej.Status)
			assert.Equal(t, tc.want, rej.Error())
		})
	}
}

func TestRequestAccessNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, "", time.Second).RequestAccess(context.Background(), core.JoinRequest{Room: "r", Name: "n"})
	var te *core.TransportError
	assert.True(t, errors.As(err, &te))
}

func TestTokenExpiryOpaque(t *testing.T) {
	assert.True(t, TokenExpiry("not-a-jwt").IsZero())
}
