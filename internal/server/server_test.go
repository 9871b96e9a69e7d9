package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/formweaver/formweaver/internal/agent/orchestrator"
	"github.com/formweaver/formweaver/internal/agent/tools"
	"github.com/formweaver/formweaver/internal/common/config"
	"github.com/formweaver/formweaver/internal/common/logger"
	formmodel "github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/service"
	"github.com/formweaver/formweaver/internal/form/store"
)

const testSecret = "test-secret"

// textModel always answers with plain text and never calls tools.
type textModel struct{}

func (textModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage("Happy to help with your form.", nil), nil
}

func (textModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported in tests")
}

func (m textModel) WithTools(ts []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// stallModel blocks its generation call until released, then fails.
type stallModel struct {
	started chan struct{}
	release chan struct{}
}

func (m stallModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	close(m.started)
	<-m.release
	return nil, errors.New("model unavailable")
}

func (m stallModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported in tests")
}

func (m stallModel) WithTools(ts []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	return newTestServerWith(t, textModel{})
}

func newTestServerWith(t *testing.T, cm model.ToolCallingChatModel) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)

	forms := service.New(st, log)
	deps := &tools.Deps{Service: forms, Log: log}
	orch := orchestrator.New(cm, map[string]tools.Tool{}, nil, st, 0, log)

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = testSecret
	cfg.Limits.TurnsPerDay = 2
	return New(cfg, orch, forms, deps, log), st
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func seedPublishedForm(t *testing.T, st *store.Store, formID, ownerID string) {
	t.Helper()
	ctx := context.Background()
	f := &formmodel.Form{ID: formID}
	require.NoError(t, st.CreateForm(ctx, ownerID, f))
	v := &formmodel.FormVersion{
		ID:     formID + "-pub",
		FormID: formID,
		Status: formmodel.StatusPublished,
		Title:  "Published survey",
		Questions: []formmodel.Question{
			{ID: "q1", Type: formmodel.QuestionText, Title: "Your name"},
			{ID: "q2", Type: formmodel.QuestionDate, Title: "Your birthday"},
		},
	}
	require.NoError(t, st.CreateVersion(ctx, v))
	f.PublishedVersionID = v.ID
	require.NoError(t, st.UpdateForm(ctx, f))
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/forms/any", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(s, http.MethodGet, "/forms/any", "not-a-jwt", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetFormPrefersPublished(t *testing.T) {
	s, st := newTestServer(t)
	seedPublishedForm(t, st, "form-pub", "user-1")
	token := signToken(t, "user-1")

	w := doRequest(s, http.MethodGet, "/forms/form-pub", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Published survey")

	w = doRequest(s, http.MethodGet, "/forms/missing", token, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchRejectsStructuralChange(t *testing.T) {
	s, st := newTestServer(t)
	seedPublishedForm(t, st, "form-guard", "user-1")
	token := signToken(t, "user-1")

	w := doRequest(s, http.MethodPatch, "/forms/form-guard", token,
		`{"questions":[{"id":"q1","questionType":"text","title":"Only one left"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Contains(t, w.Body.String(), "Cannot add or remove questions on a published form.")
}

func TestPatchContentUpdateSucceeds(t *testing.T) {
	s, st := newTestServer(t)
	seedPublishedForm(t, st, "form-edit", "user-1")
	token := signToken(t, "user-1")

	w := doRequest(s, http.MethodPatch, "/forms/form-edit", token, `{"title":"Renamed survey"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Renamed survey")
}

func TestPatchRequiresOwnership(t *testing.T) {
	s, st := newTestServer(t)
	seedPublishedForm(t, st, "form-own", "user-1")
	token := signToken(t, "intruder")

	w := doRequest(s, http.MethodPatch, "/forms/form-own", token, `{"title":"Hijacked"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatStreamsAndPersists(t *testing.T) {
	s, st := newTestServer(t)
	token := signToken(t, "user-1")

	w := doRequest(s, http.MethodPost, "/chat", token,
		`{"messages":[{"role":"user","content":"hello"}],"formId":"form-chat"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	require.Contains(t, w.Body.String(), "event: system")
	require.Contains(t, w.Body.String(), "agent_initialized")

	msgs, err := st.ListMessages(context.Background(), "form-chat")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestChatDailyLimit(t *testing.T) {
	s, _ := newTestServer(t)
	token := signToken(t, "user-1")
	body := `{"messages":[{"role":"user","content":"hi"}],"formId":"form-limit"}`

	for i := 0; i < 2; i++ {
		w := doRequest(s, http.MethodPost, "/chat", token, body)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := doRequest(s, http.MethodPost, "/chat", token, body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestChatRequiresFormOwnership(t *testing.T) {
	s, st := newTestServer(t)
	seedPublishedForm(t, st, "form-owned", "user-1")
	intruder := signToken(t, "intruder")
	body := `{"messages":[{"role":"user","content":"hi"}],"formId":"form-owned"}`

	w := doRequest(s, http.MethodPost, "/chat", intruder, body)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(s, http.MethodGet, "/chat?formId=form-owned", intruder, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(s, http.MethodPost, "/forms/form-owned", intruder, `{"prompt":"replace it"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	msgs, err := st.ListMessages(context.Background(), "form-owned")
	require.NoError(t, err)
	require.Empty(t, msgs)

	w = doRequest(s, http.MethodGet, "/chat?formId=form-owned", signToken(t, "user-1"), "")
	require.Equal(t, http.StatusOK, w.Code)

	// The first chat turn claims an unowned session id, even when no
	// tool runs.
	w = doRequest(s, http.MethodPost, "/chat", signToken(t, "user-1"),
		`{"messages":[{"role":"user","content":"hello"}],"formId":"form-claim"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(s, http.MethodGet, "/chat?formId=form-claim", intruder, "")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatClientGoneStillPersistsFallback(t *testing.T) {
	m := stallModel{started: make(chan struct{}), release: make(chan struct{})}
	s, st := newTestServerWith(t, m)
	token := signToken(t, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}],"formId":"form-gone"}`))
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		defer close(served)
		s.Handler().ServeHTTP(w, req)
	}()

	// Drop the client while the model is mid-call, then let the turn
	// finish. The fallback reply must still be stored.
	<-m.started
	cancel()
	<-served
	close(m.release)

	require.Eventually(t, func() bool {
		msgs, err := st.ListMessages(context.Background(), "form-gone")
		if err != nil || len(msgs) != 2 {
			return false
		}
		for _, msg := range msgs {
			if msg.Role == store.RoleAssistant {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLimiterDayRollover(t *testing.T) {
	l := NewLimiter(1)
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.True(t, l.CheckLimit("u").Allowed)
	require.False(t, l.CheckLimit("u").Allowed)

	now = now.Add(2 * time.Hour)
	require.True(t, l.CheckLimit("u").Allowed)
}
