package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/rahmahapps/mawadda-server/api/rest"
	"github.com/rahmahapps/mawadda-server/api/sse"
	"github.com/rahmahapps/mawadda-server/audit"
	"github.com/rahmahapps/mawadda-server/cache"
	"github.com/rahmahapps/mawadda-server/config"
	"github.com/rahmahapps/mawadda-server/match"
	"github.com/rahmahapps/mawadda-server/messaging"
	mw "github.com/rahmahapps/mawadda-server/middleware"
	"github.com/rahmahapps/mawadda-server/notify"
	"github.com/rahmahapps/mawadda-server/scheduler"
	"github.com/rahmahapps/mawadda-server/subscription"
	"github.com/rahmahapps/mawadda-server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Subs   *subscription.Service
	Server *httptest.Server
	URL    string
	Sec    config.SecurityConfig

	audit      *audit.Service
	dispatcher *notify.Dispatcher
	sched      *scheduler.Scheduler
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)

	// ---- Notifications ----
	center := notify.NewCenter()
	dispatcher := notify.NewDispatcher(db, pubsub, notify.Config{}, logger)
	dispatcher.Attach(center)

	// ---- Services ----
	subs := subscription.NewService(db, logger)
	resolver := match.NewResolver(db, match.NewLedger(db), subs, center, c, logger)
	msgSvc := messaging.NewService(db, resolver, subs, logger)

	// ---- Router ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	authH := apirest.NewAuthHandler(db, c, sec)
	profileH := apirest.NewProfileHandler(db, c, logger)
	interestH := apirest.NewInterestHandler(db, resolver, subs, auditSvc, logger)
	messageH := apirest.NewMessageHandler(db, msgSvc, logger)
	subH := apirest.NewSubscriptionHandler(subs, auditSvc, logger)
	notifH := apirest.NewNotificationHandler(db, logger)

	api := r.Group("/api")
	api.POST("/auth/login", authH.Login)
	api.GET("/subscriptions/plans", subH.Plans)

	authed := api.Group("", mw.Auth(sec, c))
	authed.POST("/auth/logout", authH.Logout)
	authed.GET("/profiles", profileH.Browse)
	authed.GET("/profiles/me", profileH.Me)
	authed.PUT("/profiles/me", profileH.UpdateMe)
	authed.GET("/profiles/:id", profileH.Get)
	authed.POST("/interests", interestH.Act)
	authed.GET("/interests/state/:id", interestH.State)
	authed.GET("/interests/matches", interestH.Matches)
	authed.GET("/interests/received", interestH.Received)
	authed.GET("/interests/sent", interestH.Sent)
	authed.POST("/messages", messageH.Send)
	authed.GET("/messages/conversations", messageH.Conversations)
	authed.GET("/messages/conversations/:id", messageH.Messages)
	authed.GET("/subscriptions/me", subH.Current)
	authed.POST("/subscriptions", subH.Subscribe)
	authed.GET("/notifications", notifH.List)

	sseH := sse.NewHandler(pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	srv := httptest.NewServer(r)

	return &TestServer{
		DB:         db,
		Cache:      c,
		PubSub:     pubsub,
		Subs:       subs,
		Server:     srv,
		URL:        srv.URL,
		Sec:        sec,
		audit:      auditSvc,
		dispatcher: dispatcher,
		sched:      sched,
	}
}

// Close shuts down the server and its background workers.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.dispatcher.Stop()
	ts.audit.Stop(nil)
	ts.sched.Stop()
}

var uniqueCounter int64

// UniqueID returns a process-unique name with the given prefix.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, atomic.AddInt64(&uniqueCounter, 1))
}

// Login auto-registers and returns the token and user ID.
func (ts *TestServer) Login(t *testing.T, username, password string) (string, int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	ReadJSON(t, resp, &body)
	return body["token"].(string), int64(body["user_id"].(float64))
}

// PostJSON issues a POST with an optional bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, payload interface{}, token string) *http.Response {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get issues a GET with a bearer token.
func (ts *TestServer) Get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func itoa(id int64) string {
	return fmt.Sprintf("%d", id)
}

func jsonReader(t *testing.T, payload interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

// ReadJSON decodes a response body and closes it.
func ReadJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
