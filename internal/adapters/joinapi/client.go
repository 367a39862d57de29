// Package joinapi requests room access from the token service.
package joinapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const maxBody = 1 << 20

type Client struct {
	URL    string
	Secret string
	HTTP   *http.Client
}

func New(url, secret string, timeout time.Duration) *Client {
	return &Client{
		URL:    url,
		Secret: secret,
		HTTP:   &http.Client{Timeout: timeout},
	}
}

type joinBody struct {
	Room       string `json:"room"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	TeacherKey string `json:"teacherKey"`
}

type grantBody struct {
	Room  string `json:"room"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Token string `json:"token"`
	WsURL string `json:"wsUrl"`
}

// RequestAccess posts the join request. Non-2xx responses become
// *core.AuthRejectedError, network failures *core.TransportError.
func (c *Client) RequestAccess(ctx context.Context, req core.JoinRequest) (*core.Grant, error) {
	body, err := json.Marshal(joinBody{
		Room:       string(req.Room),
		Name:       req.Name,
		Role:       string(req.Role),
		TeacherKey: req.TeacherKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode join request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &core.TransportError{Op: "join", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Secret != "" {
		httpReq.Header.Set("Authorization", c.Secret)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &core.TransportError{Op: "join", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &core.TransportError{Op: "join", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(data, resp.StatusCode)
		log.Warn().Str("module", "adapters.joinapi").Int("status", resp.StatusCode).Str("error", msg).Msg("join rejected")
		return nil, &core.AuthRejectedError{Status: resp.StatusCode, Message: msg}
	}

	var g grantBody
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, &core.TransportError{Op: "join", Err: fmt.Errorf("decode grant: %w", err)}
	}
	if g.Token == "" || g.WsURL == "" {
		return nil, &core.TransportError{Op: "join", Err: errors.New("grant without token or url")}
	}

	grant := &core.Grant{
		Room:      req.Room,
		Name:      req.Name,
		Role:      domain.ParseRole(g.Role),
		Token:     g.Token,
		URL:       g.WsURL,
		ExpiresAt: TokenExpiry(g.Token),
	}
	if room, err := domain.NormalizeRoom(g.Room); err == nil {
		grant.Room = room
	}
	if name := strings.TrimSpace(g.Name); name != "" {
		grant.Name = name
	}
	log.Info().Str("module", "adapters.joinapi").Str("room", string(grant.Room)).Str("role", string(grant.Role)).Msg("access granted")
	return grant, nil
}

// errorMessage accepts {"error":"msg"} and {"error":{"code","message"}}.
func errorMessage(data []byte, status int) string {
	fallback := fmt.Sprintf("Join API failed (%d)", status)
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil || len(env.Error) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
		return fallback
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &obj); err == nil {
		if m := strings.TrimSpace(obj.Message); m != "" {
			return m
		}
		if obj.Code != "" {
			return obj.Code
		}
	}
	return fallback
}

// TokenExpiry reads exp without verifying the signature; the token is only
// ever verified by the media server. Opaque tokens yield the zero time.
func TokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
