package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/dkeye/Classroom/internal/adapters/signal"
	"github.com/dkeye/Classroom/internal/app/orch"
	"github.com/dkeye/Classroom/internal/config"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ClassroomSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{ctx: ctx, orch: o}
	ctrl := signal.NewSignalWSController(o, signal.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateInterval), cfg.ReadLimit)

	api := r.Group("/api")
	api.GET("/state", h.state)
	api.POST("/join", h.join)
	api.POST("/leave", h.leave)
	api.POST("/mic", h.toggle(o.ToggleMic))
	api.POST("/cam", h.toggle(o.ToggleCam))
	api.POST("/screen", h.toggle(o.ToggleScreenShare))
	api.POST("/audio", h.audio)
	api.POST("/chat", h.chat)
	api.GET("/invite", h.invite)
	api.GET("/prefs", h.prefs)
	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}

type handlers struct {
	ctx  context.Context
	orch *orch.Orchestrator
}

type joinRequest struct {
	Room       string `json:"room"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	TeacherKey string `json:"teacherKey"`
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.View())
}

// join answers 202 once the request is valid; progress is visible through
// /api/state and the websocket.
func (h *handlers) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	jr := core.JoinRequest{
		Room:       domain.RoomName(req.Room),
		Name:       req.Name,
		Role:       domain.Role(req.Role),
		TeacherKey: req.TeacherKey,
	}
	room, name, err := orch.ValidateJoin(jr)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	s := sessions.Default(c)
	s.Set("room", string(room))
	s.Set("name", name)
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save prefs")
	}

	go func() {
		if err := h.orch.Join(h.ctx, jr); err != nil && !errors.Is(err, core.ErrSuperseded) {
			log.Info().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("join failed")
		}
	}()
	c.JSON(http.StatusAccepted, h.orch.View())
}

func (h *handlers) leave(c *gin.Context) {
	h.orch.Leave()
	c.JSON(http.StatusOK, h.orch.View())
}

func (h *handlers) toggle(fn func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context()); err != nil {
			c.JSON(statusOf(err), gin.H{"error": err.Error(), "view": h.orch.View()})
			return
		}
		c.JSON(http.StatusOK, h.orch.View())
	}
}

func (h *handlers) audio(c *gin.Context) {
	muted := h.orch.ToggleRemoteAudio()
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h *handlers) chat(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	if err := h.orch.SendChat(c.Request.Context(), req.Text); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// invite builds a link that pre-fills the room on the join form.
func (h *handlers) invite(c *gin.Context) {
	room, err := domain.NormalizeRoom(c.Query("room"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	q := url.Values{}
	q.Set("room", string(room))
	if name := c.Query("name"); name != "" {
		q.Set("name", name)
	}
	link := url.URL{Scheme: scheme, Host: c.Request.Host, Path: "/", RawQuery: q.Encode()}
	c.JSON(http.StatusOK, gin.H{"link": link.String()})
}

func (h *handlers) prefs(c *gin.Context) {
	s := sessions.Default(c)
	room, _ := s.Get("room").(string)
	name, _ := s.Get("name").(string)
	c.JSON(http.StatusOK, gin.H{"room": room, "name": name})
}

func statusOf(err error) int {
	var rej *core.AuthRejectedError
	var merr *core.MediaError
	var terr *core.TransportError
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotConnected), errors.Is(err, core.ErrBusy), errors.Is(err, core.ErrSuperseded):
		return http.StatusConflict
	case errors.As(err, &rej):
		return http.StatusForbidden
	case errors.As(err, &merr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
