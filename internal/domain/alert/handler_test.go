package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardline/wardline/internal/platform/auth"
)

func newHandlerEnv(t *testing.T) (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv(t, ReopenReset)
	return NewHandler(env.svc), env, echo.New()
}

func authedContext(e *echo.Echo, method, target, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateAlert(t *testing.T) {
	h, _, e := newHandlerEnv(t)
	body := `{"room_location":"ICU-4","alert_type":"code_blue","urgency_level":2,"target_department":"ICU"}`
	c, rec := authedContext(e, http.MethodPost, "/", body, "n.okafor")
	if err := h.CreateAlert(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var a Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Status != StatusActive || a.CurrentTier != 1 || a.CreatedBy != "n.okafor" {
		t.Errorf("alert = %+v", a)
	}
}

func TestHandler_CreateAlert_Invalid(t *testing.T) {
	h, _, e := newHandlerEnv(t)
	body := `{"room_location":"ICU-4","alert_type":"code_blue","urgency_level":9,"target_department":"ICU"}`
	c, _ := authedContext(e, http.MethodPost, "/", body, "n.okafor")

	err := h.CreateAlert(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_AcknowledgeThenResolve(t *testing.T) {
	h, env, e := newHandlerEnv(t)
	a := env.create(t, 3, "ICU")

	c, rec := authedContext(e, http.MethodPost, "/", `{"response_action":"en route"}`, "d.reyes")
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.AcknowledgeAlert(c); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, rec = authedContext(e, http.MethodPost, "/", "", "d.reyes")
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.ResolveAlert(c); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var got Alert
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusResolved {
		t.Errorf("status = %s", got.Status)
	}
}

func TestHandler_InvalidTransitionReturnsConflictWithStatus(t *testing.T) {
	h, env, e := newHandlerEnv(t)
	a := env.create(t, 3, "ICU")

	// resolving an active alert skips the acknowledged state
	c, _ := authedContext(e, http.MethodPost, "/", "", "u")
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.ResolveAlert(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
	msg, ok := he.Message.(map[string]interface{})
	if !ok || msg["current_status"] != StatusActive {
		t.Errorf("message = %#v, want current_status active", he.Message)
	}
}

func TestHandler_GetAlert_NotFound(t *testing.T) {
	h, _, e := newHandlerEnv(t)
	c, _ := authedContext(e, http.MethodGet, "/", "", "u")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetAlert(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_ListAlertsFiltersByStatus(t *testing.T) {
	h, env, e := newHandlerEnv(t)
	a := env.create(t, 3, "ICU")
	env.create(t, 2, "ER")
	env.svc.Acknowledge(context.Background(), a.ID, "u", AckInput{})

	c, rec := authedContext(e, http.MethodGet, "/?status=acknowledged", "", "u")
	if err := h.ListAlerts(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var resp struct {
		Data  []Alert `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].ID != a.ID {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandler_ListEscalations(t *testing.T) {
	h, env, e := newHandlerEnv(t)
	a := env.create(t, 3, "ICU")
	env.clk.Advance(2 * time.Minute)

	c, rec := authedContext(e, http.MethodGet, "/", "", "u")
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.ListEscalations(c); err != nil {
		t.Fatalf("escalations: %v", err)
	}
	var resp struct {
		Escalations []EscalationRecord `json:"escalations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Escalations) != 1 {
		t.Errorf("escalations = %d, want 1", len(resp.Escalations))
	}
}

func TestHandler_FailedTransitionsEmpty(t *testing.T) {
	h, _, e := newHandlerEnv(t)
	c, rec := authedContext(e, http.MethodGet, "/", "", "admin")
	if err := h.FailedTransitions(c); err != nil {
		t.Fatalf("failed transitions: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
}
