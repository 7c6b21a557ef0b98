package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/techagentng/citizenchat/config"
	"github.com/techagentng/citizenchat/db"
	"github.com/techagentng/citizenchat/db/dbtest"
	"github.com/techagentng/citizenchat/realtime"
	"github.com/techagentng/citizenchat/services"
	"github.com/techagentng/citizenchat/services/jwt"
)

type testServer struct {
	t      *testing.T
	srv    *Server
	router *gin.Engine
	clock  *dbtest.Clock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conf := config.Default()
	clock := dbtest.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := dbtest.WithClock(t, clock)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := realtime.NewHub()

	convRepo := db.NewConversationRepo(store)
	msgRepo := db.NewMessageRepo(store)
	presence := services.NewPresenceService(db.NewPresenceRepo(store), conf, hub)
	hub.Presence = presence
	go hub.Run(ctx)

	srv := &Server{
		Config:              conf,
		DB:                  store,
		ConversationService: services.NewConversationService(convRepo, conf, hub),
		MessageService:      services.NewMessageService(convRepo, msgRepo, conf, hub),
		PresenceService:     presence,
		Hub:                 hub,
		RateLimitStore: ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Second,
			Limit: 1000,
		}),
	}
	return &testServer{t: t, srv: srv, router: srv.Handler(), clock: clock}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (ts *testServer) token(userID string) string {
	ts.t.Helper()
	tok, err := jwt.GenerateAccessToken(userID, ts.srv.Config.JWTSecret, time.Hour)
	require.NoError(ts.t, err)
	return tok
}

// do sends a request as userID (anonymous when empty) and decodes the
// envelope; out, when non-nil, receives the data field.
func (ts *testServer) do(method, path, userID string, body interface{}, out interface{}) (int, envelope) {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(userID))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(ts.t, json.Unmarshal(env.Data, out))
	}
	return rec.Code, env
}

func httptestRequest(method, path, bearer string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func serve(ts *testServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}
