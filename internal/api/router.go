package api

import (
	"github.com/gin-gonic/gin"

	"github.com/codecrow/codecrow-server/config"
	"github.com/codecrow/codecrow-server/internal/api/handler"
	"github.com/codecrow/codecrow-server/internal/api/middleware"
)

type Router struct {
	webhookHandler *handler.WebhookHandler
	jobHandler     *handler.JobHandler
	streamHandler  *handler.StreamHandler
	gateHandler    *handler.GateHandler
	cfg            *config.Config
}

func NewRouter(
	webhookHandler *handler.WebhookHandler,
	jobHandler *handler.JobHandler,
	streamHandler *handler.StreamHandler,
	gateHandler *handler.GateHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		webhookHandler: webhookHandler,
		jobHandler:     jobHandler,
		streamHandler:  streamHandler,
		gateHandler:    gateHandler,
		cfg:            cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// webhook 入口，平台侧凭 token 认证，不走 JWT
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/:provider", r.webhookHandler.HandlePublic)
			webhooks.POST("/:provider/:token", r.webhookHandler.Handle)
		}

		// 日志流，浏览器 WebSocket 无法带请求头，token 走 query
		api.GET("/jobs/:id/logs/stream", r.streamHandler.Handle)

		// 需要认证的查询面
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			jobs := authenticated.Group("/jobs")
			{
				jobs.GET("", r.jobHandler.List)
				jobs.GET("/:id", r.jobHandler.Get)
				jobs.GET("/:id/logs", r.jobHandler.Logs)
				jobs.POST("/:id/cancel", r.jobHandler.Cancel)
			}

			authenticated.GET("/workspaces/:id/gates", r.gateHandler.List)
			authenticated.GET("/projects/:id/gate", r.gateHandler.Active)
			authenticated.GET("/projects/:id/gate/evaluate", r.gateHandler.Evaluate)
		}
	}

	return engine
}
