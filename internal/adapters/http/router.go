package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Fanhub/internal/adapters/signal"
	"github.com/dkeye/Fanhub/internal/app/orch"
	"github.com/dkeye/Fanhub/internal/auth"
	"github.com/dkeye/Fanhub/internal/config"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

// HistoryReader serves the call history endpoint.
type HistoryReader interface {
	History(ctx context.Context, user domain.UserID, limit int) ([]store.HistoryEntry, error)
}

// Deps are the pieces the router hands requests to. Validator and History
// are nil when token auth or the call store are disabled.
type Deps struct {
	Orch         *orch.Orchestrator
	Signal       *signal.SignalWSController
	Validator    *auth.Validator
	History      HistoryReader
	ICEServers   []webrtc.ICEServer
	ServiceToken string
}

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a per-browser token in the cookie session.
// It only labels logs; connection identity is minted per socket.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	cookieStore.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("FanhubSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Bool("auth", deps.Validator != nil).Msg("router setup")

	h := &handlers{deps: deps}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/health", h.health)
	api.GET("/ice-servers", h.iceServers)
	api.POST("/notify", auth.ServiceMiddleware(deps.ServiceToken), h.notify)

	authed := api.Group("", auth.Middleware(deps.Validator))
	authed.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	calls := authed.Group("/calls", auth.RequireUser())
	calls.POST("", h.startCall)
	calls.POST("/:id/accept", h.acceptCall)
	calls.POST("/:id/reject", h.rejectCall)
	calls.POST("/:id/end", h.endCall)
	calls.GET("/history", h.history)

	authed.GET("/stats", auth.RequireUser(), h.stats)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
