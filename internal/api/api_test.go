package api_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/apierr"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/response"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/factory"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
)

const defaultAddr = "192.0.2.1:1234"

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := factory.TestConfig()
	cfg.Identity.AdminUsernames = []string{"root"}
	cfg.Stream.HeartbeatInterval = 50 * time.Millisecond
	cfg.Stream.MaxDuration = 2 * time.Second

	app := factory.NewTestAppWithConfig(cfg)
	t.Cleanup(func() { _ = app.Close() })

	return &testServer{
		handler: app.Router(),
		app:     app,
	}
}

func (ts *testServer) requestFrom(addr, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.RemoteAddr = addr
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	return ts.requestFrom(defaultAddr, method, path, body, token)
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func assertAPIError(t *testing.T, rr *httptest.ResponseRecorder, status int, kind apierr.Kind, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, rr.Body.String())
	body := decodeBody[apierr.ErrorResponse](t, rr)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, kind, body.Kind)
	assert.Equal(t, code, body.Code)
}

// createGuest enters as a guest from addr and returns the session token
func createGuest(t *testing.T, ts *testServer, addr, name string) (string, response.Identity) {
	t.Helper()
	rr := ts.requestFrom(addr, http.MethodPost, "/api/v1/identity/guest", map[string]string{"display_name": name}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodeBody[response.AuthResponse](t, rr)
	return resp.SessionToken, resp.Identity
}

func register(t *testing.T, ts *testServer, username string) (string, response.Identity) {
	t.Helper()
	body := map[string]string{"username": username, "password": "password123", "display_name": username}
	rr := ts.request(http.MethodPost, "/api/v1/identity/register", body, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodeBody[response.AuthResponse](t, rr)
	return resp.SessionToken, resp.Identity
}

func createRoom(t *testing.T, ts *testServer, token string, body map[string]any) response.Room {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/rooms", body, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[response.Room](t, rr)
}

func join(t *testing.T, ts *testServer, token string, roomID model.RoomID) {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/rooms/"+string(roomID)+"/join", nil, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, response.Health{Status: "ok", Storage: "ok"}, decodeBody[response.Health](t, rr))
}

func TestCreateGuest(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/identity/guest", map[string]string{"display_name": "Alice"}, "")
	assert.Equal(t, http.StatusCreated, rr.Code)

	resp := decodeBody[response.AuthResponse](t, rr)
	assert.Equal(t, "Alice", resp.Identity.DisplayName)
	assert.Equal(t, string(model.KindGuest), resp.Identity.Kind)
	assert.NotEmpty(t, resp.SessionToken)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, resp.SessionToken, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestGuestIdentityFollowsAddress(t *testing.T) {
	ts := newTestServer(t)

	_, first := createGuest(t, ts, "198.51.100.7:1000", "Alice")
	_, again := createGuest(t, ts, "198.51.100.7:2000", "Alicia")
	_, other := createGuest(t, ts, "198.51.100.8:1000", "Bob")

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Alicia", again.DisplayName)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCreateGuestValidation(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/identity/guest", map[string]string{}, "")
	assertAPIError(t, rr, http.StatusBadRequest, apierr.KindValidation, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, "/api/v1/identity/guest", map[string]string{"display_name": strings.Repeat("x", 100)}, "")
	assertAPIError(t, rr, http.StatusBadRequest, apierr.KindValidation, apierr.CodeValidation)

	rr = ts.request(http.MethodPost, "/api/v1/identity/guest", map[string]string{"display_name": "Al", "extra": "field"}, "")
	assertAPIError(t, rr, http.StatusBadRequest, apierr.KindValidation, apierr.CodeInvalidRequest)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	_, registered := register(t, ts, "alice")
	assert.Equal(t, string(model.KindRegistered), registered.Kind)

	rr := ts.request(http.MethodPost, "/api/v1/identity/register", map[string]string{"username": "alice", "password": "password123"}, "")
	assertAPIError(t, rr, http.StatusConflict, apierr.KindConflict, apierr.CodeUsernameTaken)

	loginBody := map[string]string{"username": "alice", "password": "password123"}
	rr = ts.request(http.MethodPost, "/api/v1/identity/login", loginBody, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, registered.ID, decodeBody[response.AuthResponse](t, rr).Identity.ID)

	loginBody["password"] = "wrong-password"
	rr = ts.request(http.MethodPost, "/api/v1/identity/login", loginBody, "")
	assertAPIError(t, rr, http.StatusUnauthorized, apierr.KindUnauthenticated, apierr.CodeInvalidCredentials)
}

func TestGetMeAcceptsCookie(t *testing.T) {
	ts := newTestServer(t)
	token, _ := createGuest(t, ts, defaultAddr, "Bob")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identity/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Bob", decodeBody[response.Identity](t, rr).DisplayName)
}

func TestUnauthenticatedWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/identity/me", nil, "")
	assertAPIError(t, rr, http.StatusUnauthorized, apierr.KindUnauthenticated, apierr.CodeUnauthenticated)

	rr = ts.request(http.MethodPost, "/api/v1/rooms", map[string]string{"name": "x"}, "")
	assertAPIError(t, rr, http.StatusUnauthorized, apierr.KindUnauthenticated, apierr.CodeUnauthenticated)

	rr = ts.request(http.MethodGet, "/api/v1/identity/me", nil, "not-a-session")
	assertAPIError(t, rr, http.StatusUnauthorized, apierr.KindUnauthenticated, apierr.CodeUnauthenticated)
}

func TestUpdateProfileRejectsInvalidColor(t *testing.T) {
	ts := newTestServer(t)
	token, _ := register(t, ts, "alice")

	rr := ts.request(http.MethodPatch, "/api/v1/identity/me", map[string]any{"color": "red", "avatar_hue": 200}, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodPatch, "/api/v1/identity/me", map[string]any{"color": "chartreuse"}, token)
	assertAPIError(t, rr, http.StatusBadRequest, apierr.KindValidation, apierr.CodeValidation)

	rr = ts.request(http.MethodGet, "/api/v1/identity/me", nil, token)
	me := decodeBody[response.Identity](t, rr)
	assert.Equal(t, "red", me.Color)
	assert.Equal(t, 200, me.AvatarHue)
}

func TestLogoutGuestClearsSession(t *testing.T) {
	ts := newTestServer(t)
	token, _ := createGuest(t, ts, defaultAddr, "Bob")

	rr := ts.request(http.MethodPost, "/api/v1/identity/logout", nil, token)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)

	rr = ts.request(http.MethodGet, "/api/v1/identity/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateListAndJoinRoom(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceID := register(t, ts, "alice")
	bob, _ := register(t, ts, "bob")

	room := createRoom(t, ts, alice, map[string]any{"name": "Tea House", "capacity": 5, "password": "hunter2"})
	assert.Equal(t, "Tea House", room.Name)
	assert.True(t, room.HasPassword)
	assert.Equal(t, model.IdentityID(aliceID.ID), room.HostID)
	require.Len(t, room.Members, 1)
	assert.True(t, room.Members[0].IsHost)

	// The directory is public and never carries secrets
	rr := ts.request(http.MethodGet, "/api/v1/rooms", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "hunter2")
	assert.NotContains(t, rr.Body.String(), "password_hash")
	assert.Len(t, decodeBody[response.Rooms](t, rr).Rooms, 1)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/"+string(room.ID)+"/join", nil, bob)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeRoomLocked)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/"+string(room.ID)+"/join", map[string]string{"password": "hunter2"}, bob)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decodeBody[response.Room](t, rr).Members, 2)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/"+string(room.ID)+"/join", map[string]string{"password": "hunter2"}, bob)
	assertAPIError(t, rr, http.StatusConflict, apierr.KindConflict, apierr.CodeAlreadyInRoom)
}

func TestRoomFull(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := register(t, ts, "alice")
	bob, _ := register(t, ts, "bob")
	carol, _ := register(t, ts, "carol")

	room := createRoom(t, ts, alice, map[string]any{"name": "Pair", "capacity": 2})
	join(t, ts, bob, room.ID)

	rr := ts.request(http.MethodPost, "/api/v1/rooms/"+string(room.ID)+"/join", nil, carol)
	assertAPIError(t, rr, http.StatusConflict, apierr.KindConflict, apierr.CodeRoomFull)
}

func TestUnknownRoom(t *testing.T) {
	ts := newTestServer(t)
	token, _ := register(t, ts, "alice")

	rr := ts.request(http.MethodGet, "/api/v1/rooms/nope", nil, "")
	assertAPIError(t, rr, http.StatusNotFound, apierr.KindNotFound, apierr.CodeRoomNotFound)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/nope/join", nil, token)
	assertAPIError(t, rr, http.StatusNotFound, apierr.KindNotFound, apierr.CodeRoomNotFound)
}

func TestHostActions(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := register(t, ts, "alice")
	bob, bobID := register(t, ts, "bob")

	room := createRoom(t, ts, alice, map[string]any{"name": "Stage"})
	join(t, ts, bob, room.ID)
	path := "/api/v1/rooms/" + string(room.ID)

	// Bob is not the host
	rr := ts.request(http.MethodPost, path+"/host/pass", map[string]string{"identity_id": bobID.ID}, bob)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeNotHost)

	rr = ts.request(http.MethodPost, path+"/host/claim", nil, bob)
	assertAPIError(t, rr, http.StatusConflict, apierr.KindConflict, apierr.CodeHostAlreadySet)

	rr = ts.request(http.MethodPost, path+"/host/pass", map[string]string{"identity_id": bobID.ID}, alice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, model.IdentityID(bobID.ID), decodeBody[response.Room](t, rr).HostID)

	rr = ts.request(http.MethodPatch, path, map[string]any{"description": "open mic"}, alice)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeNotHost)

	rr = ts.request(http.MethodPatch, path, map[string]any{"description": "open mic"}, bob)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "open mic", decodeBody[response.Room](t, rr).Description)
}

func TestKickRequiresTarget(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := register(t, ts, "alice")
	bob, bobID := register(t, ts, "bob")

	room := createRoom(t, ts, alice, map[string]any{"name": "Stage"})
	join(t, ts, bob, room.ID)
	path := "/api/v1/rooms/" + string(room.ID)

	rr := ts.request(http.MethodPost, path+"/kick", map[string]string{}, alice)
	assertAPIError(t, rr, http.StatusBadRequest, apierr.KindValidation, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, path+"/kick", map[string]string{"identity_id": bobID.ID}, alice)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, path+"/members", nil, "")
	assert.Len(t, decodeBody[response.Members](t, rr).Members, 1)
}

func TestMessagesAndMentions(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := register(t, ts, "alice")
	bob, _ := register(t, ts, "bob")

	room := createRoom(t, ts, alice, map[string]any{"name": "Chatter"})
	join(t, ts, bob, room.ID)
	path := "/api/v1/rooms/" + string(room.ID) + "/messages"

	rr := ts.request(http.MethodPost, path, map[string]string{"body": "hi @alice"}, bob)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sent := decodeBody[model.MessageView](t, rr)
	assert.Equal(t, "bob", sent.Sender.Name)

	rr = ts.request(http.MethodPost, path, map[string]string{"body": "   "}, bob)
	assertAPIError(t, rr, http.StatusBadRequest, apierr.KindValidation, apierr.CodeValidation)

	rr = ts.request(http.MethodGet, path, nil, alice)
	require.Equal(t, http.StatusOK, rr.Code)
	var bodies []string
	for _, m := range decodeBody[response.Messages](t, rr).Messages {
		if m.Type == model.MessageNormal {
			bodies = append(bodies, m.Body)
		}
	}
	assert.Equal(t, []string{"hi @alice"}, bodies)

	rr = ts.request(http.MethodGet, "/api/v1/identity/me/mentions", nil, alice)
	mentions := decodeBody[response.Mentions](t, rr)
	assert.Len(t, mentions.Mentions, 1)
	assert.Equal(t, 1, mentions.Unread)

	rr = ts.request(http.MethodPost, "/api/v1/identity/me/mentions/read", nil, alice)
	assert.Equal(t, response.MarkedRead{Marked: 1}, decodeBody[response.MarkedRead](t, rr))
}

func TestHistoryRequiresMembership(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := register(t, ts, "alice")
	eve, _ := register(t, ts, "eve")

	room := createRoom(t, ts, alice, map[string]any{"name": "Private"})

	rr := ts.request(http.MethodGet, "/api/v1/rooms/"+string(room.ID)+"/messages", nil, eve)
	assertAPIError(t, rr, http.StatusNotFound, apierr.KindNotFound, apierr.CodeNotInRoom)
}

func TestMuteBlocksSending(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := register(t, ts, "alice")
	bob, bobID := register(t, ts, "bob")

	room := createRoom(t, ts, alice, map[string]any{"name": "Quiet"})
	join(t, ts, bob, room.ID)
	path := "/api/v1/rooms/" + string(room.ID)

	rr := ts.request(http.MethodPost, path+"/mutes", map[string]string{"identity_id": bobID.ID, "duration": "soon"}, alice)
	assertAPIError(t, rr, http.StatusBadRequest, apierr.KindValidation, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, path+"/mutes", map[string]string{"identity_id": bobID.ID, "duration": "10m"}, alice)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodPost, path+"/messages", map[string]string{"body": "hello?"}, bob)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeMuted)

	rr = ts.request(http.MethodDelete, path+"/mutes/"+bobID.ID, nil, alice)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodPost, path+"/messages", map[string]string{"body": "hello?"}, bob)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestBanFlow(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := register(t, ts, "alice")
	bob, bobID := register(t, ts, "bob")

	room := createRoom(t, ts, alice, map[string]any{"name": "Club"})
	join(t, ts, bob, room.ID)
	path := "/api/v1/rooms/" + string(room.ID)

	rr := ts.request(http.MethodPost, path+"/bans", map[string]string{"identity_id": bobID.ID, "reason": "spam"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodPost, path+"/join", nil, bob)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeBanned)

	rr = ts.request(http.MethodGet, path+"/bans", nil, alice)
	bans := decodeBody[response.Bans](t, rr)
	require.Len(t, bans.Bans, 1)
	assert.Equal(t, "spam", bans.Bans[0].Reason)

	rr = ts.request(http.MethodDelete, path+"/bans/"+bobID.ID, nil, alice)
	require.Equal(t, http.StatusNoContent, rr.Code)
	join(t, ts, bob, room.ID)
}

func TestKnockFlow(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := register(t, ts, "alice")
	bob, _ := register(t, ts, "bob")

	room := createRoom(t, ts, alice, map[string]any{"name": "Speakeasy", "invite_only": true})
	path := "/api/v1/rooms/" + string(room.ID)

	rr := ts.request(http.MethodPost, path+"/knocks", map[string]string{"message": "swordfish"}, bob)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	knock := decodeBody[model.Knock](t, rr)

	rr = ts.request(http.MethodPost, path+"/knocks", nil, bob)
	assertAPIError(t, rr, http.StatusConflict, apierr.KindConflict, apierr.CodeKnockPending)

	rr = ts.request(http.MethodGet, path+"/knocks", nil, bob)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeNotHost)

	rr = ts.request(http.MethodGet, path+"/knocks", nil, alice)
	assert.Len(t, decodeBody[response.Knocks](t, rr).Knocks, 1)

	rr = ts.request(http.MethodPost, "/api/v1/knocks/"+string(knock.ID)+"/resolve", map[string]bool{"accept": true}, alice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, model.KnockAccepted, decodeBody[model.Knock](t, rr).Status)

	rr = ts.request(http.MethodPost, "/api/v1/knocks/"+string(knock.ID)+"/resolve", map[string]bool{"accept": false}, alice)
	assertAPIError(t, rr, http.StatusConflict, apierr.KindConflict, apierr.CodeKnockResolved)

	join(t, ts, bob, room.ID)
}

func TestPumpkinClaimPaysOnce(t *testing.T) {
	ts := newTestServer(t)
	root, _ := register(t, ts, "root")
	alice, _ := register(t, ts, "alice")
	bob, _ := register(t, ts, "bob")

	room := createRoom(t, ts, alice, map[string]any{"name": "Patch"})
	join(t, ts, bob, room.ID)
	path := "/api/v1/rooms/" + string(room.ID) + "/spawns"

	rr := ts.request(http.MethodPost, path, map[string]string{"kind": "pumpkin"}, alice)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeForbidden)

	rr = ts.request(http.MethodPost, path, map[string]string{"kind": "comet"}, root)
	assertAPIError(t, rr, http.StatusBadRequest, apierr.KindValidation, apierr.CodeSpawnKind)

	rr = ts.request(http.MethodPost, path, map[string]string{"kind": "pumpkin"}, root)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	spawn := decodeBody[model.Spawn](t, rr)

	rr = ts.request(http.MethodGet, path, nil, "")
	assert.Len(t, decodeBody[response.Spawns](t, rr).Spawns, 1)

	rr = ts.request(http.MethodPost, path+"/"+string(spawn.ID)+"/claim", nil, bob)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodPost, path+"/"+string(spawn.ID)+"/claim", nil, alice)
	assertAPIError(t, rr, http.StatusConflict, apierr.KindConflict, apierr.CodeSpawnClaimed)

	rr = ts.request(http.MethodGet, "/api/v1/identity/me/balance", nil, bob)
	assert.Equal(t, spawn.Reward, decodeBody[response.Balance](t, rr).Balance)
	rr = ts.request(http.MethodGet, "/api/v1/identity/me/balance", nil, alice)
	assert.Zero(t, decodeBody[response.Balance](t, rr).Balance)
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	ts := newTestServer(t)
	root, _ := register(t, ts, "root")
	alice, _ := register(t, ts, "alice")
	bob, bobID := register(t, ts, "bob")

	rr := ts.request(http.MethodPost, "/api/v1/admin/maintenance", nil, alice)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeForbidden)

	rr = ts.request(http.MethodPost, "/api/v1/admin/maintenance", nil, root)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decodeBody[response.MaintenanceResponse](t, rr).Results, len(ts.app.Scheduler.Jobs()))

	rr = ts.request(http.MethodPost, "/api/v1/admin/bans", map[string]string{"identity_id": bobID.ID, "duration": "1h"}, root)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodPost, "/api/v1/rooms", map[string]any{"name": "Escape"}, bob)
	assertAPIError(t, rr, http.StatusForbidden, apierr.KindUnauthorized, apierr.CodeBanned)

	rr = ts.request(http.MethodGet, "/api/v1/admin/bans", nil, root)
	assert.Len(t, decodeBody[response.Bans](t, rr).Bans, 1)

	rr = ts.request(http.MethodDelete, "/api/v1/admin/bans/"+bobID.ID, nil, root)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/nowhere", nil, "")
	assertAPIError(t, rr, http.StatusNotFound, apierr.KindNotFound, "ROUTE_NOT_FOUND")

	rr = ts.request(http.MethodPut, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func readEvent(t *testing.T, r *bufio.Reader) model.Event {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			var ev model.Event
			require.NoError(t, json.Unmarshal([]byte(data), &ev))
			return ev
		}
	}
}

func TestRoomEventStream(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	alice, _ := register(t, ts, "alice")
	eve, _ := register(t, ts, "eve")
	room := createRoom(t, ts, alice, map[string]any{"name": "Live"})

	// Non-members are refused before the stream starts
	rr := ts.request(http.MethodGet, "/api/v1/rooms/"+string(room.ID)+"/events", nil, eve)
	assertAPIError(t, rr, http.StatusNotFound, apierr.KindNotFound, apierr.CodeNotInRoom)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/rooms/"+string(room.ID)+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, model.EventConnected, readEvent(t, reader).Type)

	rr = ts.request(http.MethodPost, "/api/v1/rooms/"+string(room.ID)+"/messages", map[string]string{"body": "streamed"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code)

	for {
		ev := readEvent(t, reader)
		if ev.Type == model.EventHeartbeat {
			continue
		}
		assert.Equal(t, model.EventNewMessage, ev.Type)
		break
	}
}

func TestBannedMemberStreamStops(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	alice, _ := register(t, ts, "alice")
	bob, bobID := register(t, ts, "bob")
	room := createRoom(t, ts, alice, map[string]any{"name": "Vault", "password": "hunter22"})
	path := "/api/v1/rooms/" + string(room.ID)
	rr := ts.request(http.MethodPost, path+"/join", map[string]string{"password": "hunter22"}, bob)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	req, err := http.NewRequest(http.MethodGet, server.URL+path+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bob)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	require.Equal(t, model.EventConnected, readEvent(t, reader).Type)
	require.Eventually(t, func() bool {
		hub := ts.app.Hubs.GetHub(realtime.RoomTopic(room.ID))
		return hub != nil && hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	rr = ts.request(http.MethodPost, path+"/bans", map[string]string{"identity_id": bobID.ID}, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = ts.request(http.MethodPost, path+"/messages", map[string]string{"body": "the code is 0451"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var types []model.EventType
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			var ev model.Event
			require.NoError(t, json.Unmarshal([]byte(data), &ev))
			types = append(types, ev.Type)
		}
	}
	assert.NotContains(t, types, model.EventNewMessage)
	require.NotEmpty(t, types)
	assert.Equal(t, model.EventReconnect, types[len(types)-1])

	// Reconnecting is refused now that bob is out
	rr = ts.request(http.MethodGet, path+"/events", nil, bob)
	assertAPIError(t, rr, http.StatusNotFound, apierr.KindNotFound, apierr.CodeNotInRoom)
}

func TestRoomWebSocket(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	alice, _ := register(t, ts, "alice")
	room := createRoom(t, ts, alice, map[string]any{"name": "Socket"})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/rooms/" + string(room.ID) + "/ws"
	header := http.Header{"Authorization": []string{"Bearer " + alice}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev model.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, model.EventConnected, ev.Type)
}
