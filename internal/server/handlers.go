package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/agent/repo"
	"github.com/tripwise/server/internal/agent/stream"
	errx "github.com/tripwise/server/internal/core/error"
	"github.com/tripwise/server/internal/interrupt"
	logx "github.com/tripwise/server/pkg/logger"
)

type chatRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	// Message is an accepted alias for Query.
	Message string `json:"message"`
}

func (r chatRequest) text() string {
	if q := strings.TrimSpace(r.Query); q != "" {
		return q
	}
	return strings.TrimSpace(r.Message)
}

type cancelRequest struct {
	QueryID string `json:"query_id"`
	Reason  string `json:"reason"`
}

type resumeRequest struct {
	ThreadID        string `json:"thread_id"`
	PreviousQueryID string `json:"previous_query_id"`
	Query           string `json:"query"`
	// QueryID and Message are accepted aliases.
	QueryID string `json:"query_id"`
	Message string `json:"message"`
}

func (r resumeRequest) text() string {
	if q := strings.TrimSpace(r.Query); q != "" {
		return q
	}
	return strings.TrimSpace(r.Message)
}

func (r resumeRequest) priorQueryID() string {
	if r.PreviousQueryID != "" {
		return r.PreviousQueryID
	}
	return r.QueryID
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":   "tripwise",
		"status": "ok",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":         "ok",
		"active_queries": s.interrupts.Active(),
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(c.Request.Context()).Err(); err != nil {
			health["status"] = "degraded"
			health["redis"] = "unreachable"
		} else {
			health["redis"] = "ok"
		}
	} else {
		health["redis"] = "disabled"
	}
	c.JSON(http.StatusOK, health)
}

// handleChatStream runs one query through the pipeline, streaming events as
// SSE until the terminal event.
func (s *Server) handleChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.text() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if req.UserID != "" {
		logx.Debug().Str("user_id", req.UserID).Str("thread_id", threadID).Msg("query submitted")
	}
	s.runStream(c, uuid.NewString(), threadID, req.text())
}

// handleResume revives an interrupted thread. The prior query's registry
// entry is dropped so a stale cancellation flag cannot leak into the new
// run.
func (s *Server) handleResume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ThreadID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "thread_id is required"})
		return
	}
	if prior := req.priorQueryID(); prior != "" {
		s.interrupts.Remove(prior)
	}
	message := req.text()
	if message == "" {
		message = "Please continue with my previous request."
	}
	s.runStream(c, uuid.NewString(), req.ThreadID, message)
}

func (s *Server) runStream(c *gin.Context, queryID, threadID, message string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Query-ID", queryID)
	c.Header("X-Thread-ID", threadID)

	s.interrupts.Register(queryID, threadID, message)

	pub := stream.NewPublisher(64)

	// The pipeline must not be torn down by a client disconnect; it keeps
	// running so state and cancellation semantics stay consistent.
	runCtx := stream.NewContext(context.WithoutCancel(c.Request.Context()), pub)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logx.Error().Str("query_id", queryID).Msgf("pipeline panic recovered: %v", r)
				pub.Terminal(stream.Event{
					Type:    stream.EventError,
					QueryID: queryID,
					Message: errx.SystemErrorMessage,
				})
			}
		}()

		pub.Emit(stream.Event{Type: stream.EventStart, QueryID: queryID})

		res, err := s.runner.Invoke(runCtx, model.QueryInput{
			QueryID:  queryID,
			ThreadID: threadID,
			Query:    message,
		})
		if err != nil {
			logx.Error().Err(err).Str("query_id", queryID).Msg("pipeline failed")
			pub.Terminal(stream.Event{
				Type:    stream.EventError,
				QueryID: queryID,
				Message: safeErrorMessage(err),
			})
			return
		}

		s.interrupts.Complete(queryID)
		pub.Terminal(stream.Event{
			Type:    stream.EventType(res.Terminal),
			QueryID: queryID,
			Content: res.Content,
			Reason:  res.Reason,
		})
	}()

	// Drain every event even if the client goes away; an abandoned stream
	// must not block the publisher.
	clientGone := c.Request.Context().Done()
	disconnected := false
	for ev := range pub.Events() {
		if !disconnected {
			select {
			case <-clientGone:
				disconnected = true
			default:
				ev.QueryID = queryID
				writeSSE(c.Writer, ev)
				c.Writer.Flush()
			}
		}
	}

	s.interrupts.Remove(queryID)
}

// safeErrorMessage maps internal errors to a user-facing message.
func safeErrorMessage(err error) string {
	var ae *errx.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return errx.SystemErrorMessage
}

func (s *Server) handleCancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.QueryID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query_id is required"})
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "user cancellation"
	}
	if !s.interrupts.Cancel(req.QueryID, reason) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown query_id"})
		return
	}
	logx.Info().Str("query_id", req.QueryID).Str("reason", reason).Msg("cancellation requested")
	info := s.interrupts.Status(req.QueryID)
	ack := gin.H{
		"query_id": req.QueryID,
		"status":   string(interrupt.StatusInterrupted),
		"reason":   reason,
	}
	if info.CancelledAt != nil {
		ack["timestamp"] = info.CancelledAt
	}
	c.JSON(http.StatusOK, ack)
}

func (s *Server) handleStatus(c *gin.Context) {
	info := s.interrupts.Status(c.Param("query_id"))
	if info.Status == interrupt.StatusNotFound {
		c.JSON(http.StatusNotFound, info)
		return
	}
	c.JSON(http.StatusOK, info)
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleHistory(c *gin.Context) {
	threadID := c.Param("thread_id")
	state, err := s.states.Load(c.Request.Context(), threadID)
	if err != nil {
		if errors.Is(err, repo.ErrStateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown thread_id"})
			return
		}
		status := errx.StatusOf(err)
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": safeErrorMessage(err)})
		return
	}

	msgs := make([]historyMessage, 0, len(state.Messages))
	for _, m := range state.Messages {
		if m == nil || m.Role == schema.System || m.Content == "" {
			continue
		}
		msgs = append(msgs, historyMessage{Role: string(m.Role), Content: m.Content})
	}
	c.JSON(http.StatusOK, gin.H{
		"thread_id": threadID,
		"status":    string(state.Status),
		"messages":  msgs,
	})
}
