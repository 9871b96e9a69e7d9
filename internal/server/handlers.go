package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formweaver/formweaver/internal/agent/stream"
	"github.com/formweaver/formweaver/internal/agent/tools"
	"github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/service"
	"github.com/formweaver/formweaver/internal/form/store"
)

// ownsForm reports whether the caller may act on formID, writing the
// refusal response itself when they may not. A form that does not
// exist yet is claimable by any caller.
func (s *Server) ownsForm(c *gin.Context, formID string, id *Identity) bool {
	owner, err := s.forms.Store().FormOwner(c.Request.Context(), formID)
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	if err != nil {
		s.log.Error("load form owner", zap.String("form_id", formID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load form"})
		return false
	}
	if owner != id.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the form owner"})
		return false
	}
	return true
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage  `json:"messages" binding:"required,min=1"`
	FormID   string         `json:"formId"`
	Options  map[string]any `json:"options"`
}

// postChat runs one agent turn and streams its events as SSE.
// POST /chat
func (s *Server) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := identityFrom(c)
	formID := req.FormID
	if formID == "" {
		formID = uuid.New().String()
	} else if !s.ownsForm(c, formID, id) {
		return
	}

	if decision := s.limiter.CheckLimit(id.UserID); !decision.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "daily turn limit reached",
			"usage": decision,
		})
		return
	}

	userInput := req.Messages[len(req.Messages)-1].Content

	sess := stream.NewSession()
	turn := &tools.Turn{
		FormID:    formID,
		UserID:    id.UserID,
		UserInput: userInput,
		Stream:    sess,
	}

	// The turn outlives the request. A dropped client only stops event
	// emission through the stream; partial results and the fallback
	// reply still reach the store.
	runCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		defer sess.Close()
		if _, err := s.orch.Run(runCtx, turn); err != nil {
			s.log.Error("turn aborted", zap.String("form_id", formID), zap.Error(err))
		}
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Form-Id", formID)
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	if err := sess.Serve(c.Request.Context(), c.Writer, c.Writer); err != nil {
		s.log.Warn("event stream ended early", zap.String("form_id", formID), zap.Error(err))
	}
}

// getChat returns the stored conversation for a form, oldest first.
// GET /chat?formId=
func (s *Server) getChat(c *gin.Context) {
	formID := c.Query("formId")
	if formID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "formId is required"})
		return
	}
	if !s.ownsForm(c, formID, identityFrom(c)) {
		return
	}
	msgs, err := s.forms.Store().ListMessages(c.Request.Context(), formID)
	if err != nil {
		s.log.Error("list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"formId": formID, "messages": msgs})
}

type createFormRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// postForm creates a form from a prompt without streaming.
// POST /forms/:id
func (s *Server) postForm(c *gin.Context) {
	formID := c.Param("id")
	var req createFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := identityFrom(c)
	if !s.ownsForm(c, formID, id) {
		return
	}
	if decision := s.limiter.CheckLimit(id.UserID); !decision.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "daily turn limit reached",
			"usage": decision,
		})
		return
	}

	// Events go to a drained session; this endpoint only reports the
	// final result.
	sess := stream.NewSession()
	go func() {
		for range sess.Events() {
		}
	}()
	turn := &tools.Turn{
		FormID:    formID,
		UserID:    id.UserID,
		UserInput: req.Prompt,
		Stream:    sess,
	}

	raw, err := sonic.MarshalString(map[string]string{"prompt": req.Prompt})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode request"})
		return
	}
	// Detached for the same reason as postChat: a disconnect must not
	// cancel the draft writes.
	result, err := s.create.Execute(context.WithoutCancel(c.Request.Context()), turn, raw)
	sess.Close()
	if err != nil {
		s.log.Error("create form", zap.String("form_id", formID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "form generation failed"})
		return
	}
	c.JSON(http.StatusCreated, result)
}

// patchForm applies a partial content update. When the form has no
// open draft, structural changes against the published version are
// rejected with a message naming the violation.
// PATCH /forms/:id
func (s *Server) patchForm(c *gin.Context) {
	formID := c.Param("id")
	if !s.ownsForm(c, formID, identityFrom(c)) {
		return
	}

	var update service.MinorUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	version, err := s.forms.ApplyMinorUpdate(c.Request.Context(), formID, &update)
	var guardErr *service.GuardError
	switch {
	case errors.As(err, &guardErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": guardErr.Message})
		return
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
		return
	case err != nil:
		s.log.Error("minor update", zap.String("form_id", formID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, model.SnapshotOf(version))
}

// getForm returns the published version when one exists, otherwise the
// draft.
// GET /forms/:id
func (s *Server) getForm(c *gin.Context) {
	formID := c.Param("id")
	_, version, err := s.forms.Effective(c.Request.Context(), formID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load form"})
		return
	}
	if version == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "form has no content yet"})
		return
	}
	c.JSON(http.StatusOK, model.SnapshotOf(version))
}
