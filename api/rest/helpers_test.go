package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rahmahapps/mawadda-server/api/rest"
	"github.com/rahmahapps/mawadda-server/audit"
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
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testSec = config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}

// testServer wires the whole REST surface against an in-memory DB.
type testServer struct {
	r    *gin.Engine
	db   *gorm.DB
	subs *subscription.Service
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger, _ := zap.NewDevelopment()

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(nil) })

	center := notify.NewCenter()
	dispatcher := notify.NewDispatcher(db, pubsub, notify.Config{}, logger)
	dispatcher.Attach(center)
	t.Cleanup(dispatcher.Stop)

	subs := subscription.NewService(db, logger)
	resolver := match.NewResolver(db, match.NewLedger(db), subs, center, c, logger)
	msgSvc := messaging.NewService(db, resolver, subs, logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	authH := rest.NewAuthHandler(db, c, testSec)
	profileH := rest.NewProfileHandler(db, c, logger)
	interestH := rest.NewInterestHandler(db, resolver, subs, auditSvc, logger)
	messageH := rest.NewMessageHandler(db, msgSvc, logger)
	subH := rest.NewSubscriptionHandler(subs, auditSvc, logger)
	notifH := rest.NewNotificationHandler(db, logger)
	adminH := rest.NewAdminHandler(db, sched, logger)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/login", authH.Login)
	api.GET("/subscriptions/plans", subH.Plans)

	authed := api.Group("", mw.Auth(testSec, c))
	authed.POST("/auth/logout", authH.Logout)
	authed.POST("/auth/refresh", authH.Refresh)
	authed.GET("/profiles", profileH.Browse)
	authed.GET("/profiles/recent", profileH.Recent)
	authed.GET("/profiles/me", profileH.Me)
	authed.PUT("/profiles/me", profileH.UpdateMe)
	authed.GET("/profiles/:id", profileH.Get)
	authed.POST("/interests", interestH.Act)
	authed.GET("/interests/state/:id", interestH.State)
	authed.GET("/interests/matches", interestH.Matches)
	authed.GET("/interests/received", interestH.Received)
	authed.GET("/interests/sent", interestH.Sent)
	authed.GET("/interests/history/:id", interestH.History)
	authed.POST("/messages", messageH.Send)
	authed.GET("/messages/conversations", messageH.Conversations)
	authed.GET("/messages/conversations/:id", messageH.Messages)
	authed.GET("/subscriptions/me", subH.Current)
	authed.POST("/subscriptions", subH.Subscribe)
	authed.GET("/notifications", notifH.List)
	authed.POST("/notifications/:id/read", notifH.MarkRead)

	adminG := api.Group("/admin", rest.AdminAuth(config.ServerConfig{AdminKey: "admin-key"}))
	adminG.GET("/users", adminH.Users)
	adminG.POST("/users/:id/status", adminH.SetUserStatus)
	adminG.GET("/tasks", adminH.Tasks)
	adminG.GET("/stats", adminH.Stats)

	return &testServer{r: r, db: db, subs: subs}
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(body interface{}) *bytes.Reader {
	b, _ := json.Marshal(body)
	return bytes.NewReader(b)
}

func getJSON(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// login auto-registers a user and returns their id and bearer token.
func (s *testServer) login(t *testing.T, username string) (int64, string) {
	t.Helper()
	w := postJSON(s.r, "/api/auth/login", map[string]string{
		"username": username,
		"password": "pass1234",
	})
	require.Equal(t, http.StatusOK, w.Code, "login %s: %s", username, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return int64(resp["user_id"].(float64)), resp["token"].(string)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
