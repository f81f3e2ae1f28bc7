// Package http wires the gin router: REST CRUD for conversations and
// messages, login, user search, static files and the websocket endpoint.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/adapters/ws"
	"github.com/mkoval/parley/internal/config"
	"github.com/mkoval/parley/internal/hub"
	"github.com/mkoval/parley/internal/store"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, st *store.Store, reg *hub.Registry, fanout *hub.Fanout, relay *hub.CallRelay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParleySessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	a := &API{Store: st, Registry: reg, Fanout: fanout}
	wsCtl := ws.NewController(reg, relay, cfg.ReadLimit)

	api := r.Group("/api")
	api.POST("/login", a.login)
	api.GET("/users", a.searchUsers)
	api.GET("/chats", a.listChats)
	api.POST("/chats", a.createChat)
	api.GET("/messages/:chatId", a.listMessages)
	api.POST("/messages", a.createMessage)
	api.GET("/ws", func(c *gin.Context) {
		wsCtl.HandleWS(ctx, c)
	})

	return r
}
