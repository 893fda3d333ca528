package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/codecrow/codecrow-server/internal/ledger"
	"github.com/codecrow/codecrow-server/internal/model/dto"
	"github.com/codecrow/codecrow-server/internal/pkg/jwt"
	"github.com/codecrow/codecrow-server/internal/repository"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: 生产环境需要验证 Origin
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamHandler 任务日志实时流
type StreamHandler struct {
	jobs      *repository.JobRepository
	ledger    *ledger.Ledger
	jwtSecret string
}

func NewStreamHandler(jobs *repository.JobRepository, l *ledger.Ledger, jwtSecret string) *StreamHandler {
	return &StreamHandler{
		jobs:      jobs,
		ledger:    l,
		jwtSecret: jwtSecret,
	}
}

// Handle 日志流 WebSocket
// GET /api/v1/jobs/:id/logs/stream?token=xxx&after_seq=0
//
// 先回放 after_seq 之后的历史日志，再切换到实时推送；
// 回放快照与订阅在同一把任务锁下完成，不丢行不重行。
// 任务到达终态后推送 completed 消息并关闭连接。
func (h *StreamHandler) Handle(c *gin.Context) {
	// 浏览器 WebSocket 无法带自定义请求头，token 走 query
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if _, err := jwt.ParseToken(token, h.jwtSecret); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	job, err := h.jobs.GetByExternalID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	afterSeq, _ := strconv.ParseInt(c.Query("after_seq"), 10, 64)

	backfill, sub, err := h.ledger.Subscribe(job.ID, afterSeq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.ledger.Unsubscribe(sub)
		log.Printf("stream: failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	// 读协程仅用于检测客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, entry := range backfill {
		env := dto.StreamEnvelope{Type: ledger.EventLog, Entry: entry}
		if err := conn.WriteJSON(env); err != nil {
			h.ledger.Unsubscribe(sub)
			return
		}
	}

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// 任务终态，hub 已清理订阅
				return
			}
			env := dto.StreamEnvelope{
				Type:         ev.Type,
				FinalStatus:  ev.FinalStatus,
				ErrorMessage: ev.ErrorMessage,
			}
			if ev.Entry != nil {
				env.Entry = ev.Entry
			}
			if err := conn.WriteJSON(env); err != nil {
				h.ledger.Unsubscribe(sub)
				return
			}
			if ev.Type == ledger.EventCompleted {
				return
			}
		case <-done:
			h.ledger.Unsubscribe(sub)
			return
		}
	}
}
