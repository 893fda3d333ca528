package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/model/dto"
	"github.com/codecrow/codecrow-server/internal/webhook"
)

// WebhookHandler webhook 入口
//
// 与其他接口不同，这里按各平台的约定直接用 HTTP 状态码应答：
// 202 受理、400 载荷非法、401 token 错误、404 项目未接入。
type WebhookHandler struct {
	dispatcher *webhook.Dispatcher
}

func NewWebhookHandler(d *webhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: d}
}

// 各平台的事件类型请求头
var eventHeaders = map[string]string{
	model.ProviderGithub:    "X-GitHub-Event",
	model.ProviderGitlab:    "X-Gitlab-Event",
	model.ProviderBitbucket: "X-Event-Key",
}

// Handle 带 token 的 webhook 入口，项目 token 在路径里
// POST /api/v1/webhooks/:provider/:token
func (h *WebhookHandler) Handle(c *gin.Context) {
	h.handle(c, true)
}

// HandlePublic 免 token 入口，按外部仓库 ID 解析项目
// 未接入的仓库静默忽略，不暴露配置是否存在
// POST /api/v1/webhooks/:provider
func (h *WebhookHandler) HandlePublic(c *gin.Context) {
	h.handle(c, false)
}

func (h *WebhookHandler) handle(c *gin.Context, requireToken bool) {
	provider := c.Param("provider")
	headerName, ok := eventHeaders[provider]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	ev, err := webhook.Parse(provider, c.GetHeader(headerName), body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if ev == nil {
		// 不关心的事件类型，确认即可
		c.JSON(http.StatusOK, dto.WebhookAccepted{Status: "ignored"})
		return
	}

	project, err := h.dispatcher.ResolveProject(provider, ev.ExternalRepoID)
	if err != nil {
		if errors.Is(err, webhook.ErrUnknownProject) {
			if requireToken {
				c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			} else {
				c.JSON(http.StatusOK, dto.WebhookAccepted{Status: "ignored"})
			}
			return
		}
		log.Printf("webhook: project resolution failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if requireToken {
		if err := h.dispatcher.VerifyToken(project, c.Param("token")); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
	}

	accepted, err := h.dispatcher.Dispatch(c.Request.Context(), project, ev)
	if err != nil {
		log.Printf("webhook: dispatch failed for project %d: %v", project.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept event"})
		return
	}

	if accepted.Status == "ignored" {
		c.JSON(http.StatusOK, accepted)
		return
	}
	c.JSON(http.StatusAccepted, accepted)
}
