package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/auth"
	"cypher-server/internal/gateway"
	"cypher-server/internal/quota"
	"cypher-server/internal/store"
)

type captureSender struct {
	lastIdentifier string
	lastCode       string
}

func (s *captureSender) SendCode(identifier, code string) error {
	s.lastIdentifier = identifier
	s.lastCode = code
	return nil
}

func newTestRouter(t *testing.T, sender *captureSender, gen gateway.Generator) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.New()
	tokenCfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	r := NewRouter(Deps{
		Store:       st,
		TokenConfig: tokenCfg,
		Generator:   gen,
		Quota:       quota.NewTracker(quota.DefaultDailyLimit),
		Sender:      sender,
	})
	return r, st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, resp
}

func registerAccount(t *testing.T, r *gin.Engine, sender *captureSender, identifier string) (token string) {
	t.Helper()

	w, resp := doJSON(t, r, http.MethodPost, "/v1/auth/identify", "", map[string]any{
		"identifier": identifier,
		"persona":    "HACKER",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("identify: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["state"] != "OTP_PENDING" {
		t.Fatalf("expected OTP_PENDING, got %v", resp["state"])
	}
	flowID, _ := resp["flowId"].(string)
	if flowID == "" {
		t.Fatalf("missing flowId")
	}
	if sender.lastCode == "" {
		t.Fatalf("no code delivered")
	}

	w, resp = doJSON(t, r, http.MethodPost, "/v1/auth/code", "", map[string]any{
		"flowId": flowID,
		"code":   sender.lastCode,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("code: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["state"] != "REGISTER" {
		t.Fatalf("expected REGISTER, got %v", resp["state"])
	}

	w, resp = doJSON(t, r, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"flowId":        flowID,
		"displayName":   "Case",
		"secret":        "hunter22",
		"confirmSecret": "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["state"] != "AUTHENTICATED" {
		t.Fatalf("expected AUTHENTICATED, got %v", resp["state"])
	}
	token, _ = resp["token"].(string)
	if token == "" {
		t.Fatalf("missing token")
	}
	return token
}

func TestRegistrationAndChatFlow(t *testing.T) {
	sender := &captureSender{}
	mock := &gateway.Mock{Reply: "ACCESS GRANTED."}
	r, _ := newTestRouter(t, sender, mock)

	token := registerAccount(t, r, sender, "case@sprawl.net")

	// first send creates a session and appends both turns
	w, resp := doJSON(t, r, http.MethodPost, "/v1/chat/send", token, map[string]any{
		"persona": "HACKER",
		"text":    "open the gate",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	reply, _ := resp["reply"].(map[string]any)
	if reply["content"] != "ACCESS GRANTED." {
		t.Fatalf("unexpected reply: %v", resp["reply"])
	}
	session, _ := resp["session"].(map[string]any)
	if session["messageCount"] != float64(2) {
		t.Fatalf("expected 2 messages, got %v", session["messageCount"])
	}
	sessionID, _ := session["id"].(string)

	// list shows the session under the persona it was created for
	w, resp = doJSON(t, r, http.MethodGet, "/v1/sessions?persona=HACKER", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	sessions, _ := resp["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	// second send reuses the active session
	w, resp = doJSON(t, r, http.MethodPost, "/v1/chat/send", token, map[string]any{
		"persona":         "HACKER",
		"activeSessionId": sessionID,
		"text":            "again",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("send 2: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	session, _ = resp["session"].(map[string]any)
	if session["id"] != sessionID {
		t.Fatalf("expected reuse of %s, got %v", sessionID, session["id"])
	}
	if session["messageCount"] != float64(4) {
		t.Fatalf("expected 4 messages, got %v", session["messageCount"])
	}
	if mock.CountHistory(1) != 3 {
		t.Fatalf("expected 3 history turns on second call, got %d", mock.CountHistory(1))
	}
}

func TestPasswordLoginFlow(t *testing.T) {
	sender := &captureSender{}
	r, _ := newTestRouter(t, sender, &gateway.Mock{})

	registerAccount(t, r, sender, "molly@sprawl.net")

	// same identifier again routes to the password challenge
	w, resp := doJSON(t, r, http.MethodPost, "/v1/auth/identify", "", map[string]any{
		"identifier": "Molly@Sprawl.NET",
		"persona":    "STANDARD",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("identify: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["state"] != "PASSWORD_CHALLENGE" {
		t.Fatalf("expected PASSWORD_CHALLENGE, got %v", resp["state"])
	}
	flowID, _ := resp["flowId"].(string)

	w, _ = doJSON(t, r, http.MethodPost, "/v1/auth/password", "", map[string]any{
		"flowId": flowID,
		"secret": "wrong-secret",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", w.Code)
	}

	w, resp = doJSON(t, r, http.MethodPost, "/v1/auth/identify", "", map[string]any{
		"identifier": "molly@sprawl.net",
		"persona":    "STANDARD",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("re-identify: expected 200, got %d", w.Code)
	}
	flowID, _ = resp["flowId"].(string)

	w, resp = doJSON(t, r, http.MethodPost, "/v1/auth/password", "", map[string]any{
		"flowId": flowID,
		"secret": "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("password: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["token"] == "" {
		t.Fatalf("missing token after password login")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	sender := &captureSender{}
	r, _ := newTestRouter(t, sender, &gateway.Mock{})

	w, _ := doJSON(t, r, http.MethodGet, "/v1/sessions?persona=STANDARD", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/v1/chat/send", "not-a-token", map[string]any{
		"persona": "STANDARD",
		"text":    "hi",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
}

func TestAccountEndpoint(t *testing.T) {
	sender := &captureSender{}
	r, _ := newTestRouter(t, sender, &gateway.Mock{})

	token := registerAccount(t, r, sender, "armitage@sprawl.net")

	w, resp := doJSON(t, r, http.MethodGet, "/v1/account", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("account: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	account, _ := resp["account"].(map[string]any)
	if account["identifier"] != "armitage@sprawl.net" {
		t.Fatalf("unexpected identifier: %v", account["identifier"])
	}
	if account["quotaLimit"] != float64(quota.DefaultDailyLimit) {
		t.Fatalf("unexpected quotaLimit: %v", account["quotaLimit"])
	}
	if _, hasSecret := account["secretHash"]; hasSecret {
		t.Fatalf("secret hash leaked in account view")
	}

	w, resp = doJSON(t, r, http.MethodPut, "/v1/account", token, map[string]any{
		"personaDefault": "HACKER",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	account, _ = resp["account"].(map[string]any)
	if account["personaDefault"] != "HACKER" {
		t.Fatalf("personaDefault not updated: %v", account["personaDefault"])
	}
}

func TestCodeAttemptsThrottled(t *testing.T) {
	sender := &captureSender{}
	r, _ := newTestRouter(t, sender, &gateway.Mock{})

	w, resp := doJSON(t, r, http.MethodPost, "/v1/auth/identify", "", map[string]any{
		"identifier": "wintermute@sprawl.net",
		"persona":    "STANDARD",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("identify: expected 200, got %d", w.Code)
	}
	flowID, _ := resp["flowId"].(string)

	sawThrottle := false
	for i := 0; i < 6; i++ {
		w, _ = doJSON(t, r, http.MethodPost, "/v1/auth/code", "", map[string]any{
			"flowId": flowID,
			"code":   "000000",
		})
		if w.Code == http.StatusTooManyRequests {
			sawThrottle = true
			break
		}
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401 or 429, got %d", i, w.Code)
		}
	}
	if !sawThrottle {
		t.Fatalf("expected a throttled attempt after repeated wrong codes")
	}
}
