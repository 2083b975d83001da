package handover

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
	env := newTestEnv(t)
	return NewHandler(env.svc), env, echo.New()
}

func authedContext(e *echo.Echo, method, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, userID))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_StartShift(t *testing.T) {
	h, _, e := newHandlerEnv(t)
	c, rec := authedContext(e, http.MethodPost, `{"hospital_id":"st-marys","department":"ICU"}`, "n.okafor")
	if err := h.StartShift(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var sl ShiftLog
	json.Unmarshal(rec.Body.Bytes(), &sl)
	if sl.UserID != "n.okafor" || sl.Status != ShiftActive {
		t.Errorf("shift = %+v", sl)
	}
}

func TestHandler_InitiateAndAccept(t *testing.T) {
	h, env, e := newHandlerEnv(t)
	sl := env.startShift(t, "n.okafor", "ICU")
	env.openAlert("ICU", 1)

	c, rec := authedContext(e, http.MethodPost, `{"shift_log_id":"`+sl.ID.String()+`","handover_notes":"busy night"}`, "n.okafor")
	if err := h.InitiateHandover(c); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var hd Handover
	json.Unmarshal(rec.Body.Bytes(), &hd)
	if hd.Status != HandoverPending || len(hd.CriticalAlerts) != 1 {
		t.Fatalf("handover = %+v", hd)
	}

	c, rec = authedContext(e, http.MethodPost, `{"acknowledgment_notes":"got it"}`, "d.reyes")
	c.SetParamNames("id")
	c.SetParamValues(hd.ID.String())
	if err := h.AcceptHandover(c); err != nil {
		t.Fatalf("accept: %v", err)
	}
	var accepted Handover
	json.Unmarshal(rec.Body.Bytes(), &accepted)
	if accepted.Status != HandoverAccepted {
		t.Errorf("status = %s", accepted.Status)
	}
}

func TestHandler_InitiateConflict(t *testing.T) {
	h, env, e := newHandlerEnv(t)
	sl := env.startShift(t, "n.okafor", "ICU")
	env.svc.Initiate(context.Background(), "n.okafor", InitiateInput{ShiftLogID: sl.ID})

	c, _ := authedContext(e, http.MethodPost, `{"shift_log_id":"`+sl.ID.String()+`"}`, "n.okafor")
	err := h.InitiateHandover(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_AcceptExpiredReturnsGone(t *testing.T) {
	h, env, e := newHandlerEnv(t)
	sl := env.startShift(t, "n.okafor", "ICU")
	hd, _ := env.svc.Initiate(context.Background(), "n.okafor", InitiateInput{ShiftLogID: sl.ID})
	env.clk.Advance(grace + time.Minute)

	c, _ := authedContext(e, http.MethodPost, "", "d.reyes")
	c.SetParamNames("id")
	c.SetParamValues(hd.ID.String())
	err := h.AcceptHandover(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusGone {
		t.Fatalf("expected 410, got %v", err)
	}
}

func TestHandler_GetHandover_NotFound(t *testing.T) {
	h, _, e := newHandlerEnv(t)
	c, _ := authedContext(e, http.MethodGet, "", "u")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	err := h.GetHandover(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
