package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/techagentng/citizenchat/models"
)

func (ts *testServer) createPrivate(a, b string) models.ConversationDetail {
	ts.t.Helper()
	var conv models.ConversationDetail
	status, env := ts.do(http.MethodPost, "/api/v1/conversations", a, obj{
		"participant_ids": []string{b},
		"type":            "private",
	}, &conv)
	require.Contains(ts.t, []int{http.StatusCreated, http.StatusOK}, status, env.Error)
	return conv
}

type obj = map[string]interface{}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	status, env := ts.do(http.MethodGet, "/api/v1/conversations", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHENTICATED", env.Code)
}

func TestUserIDMustMatchToken(t *testing.T) {
	ts := newTestServer(t)
	status, env := ts.do(http.MethodGet, "/api/v1/conversations?userId=B", "A", nil, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "NOT_AUTHORIZED", env.Code)

	status, _ = ts.do(http.MethodGet, "/api/v1/conversations?userId=A", "A", nil, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestRealtimeTokenIsNotAnAccessToken(t *testing.T) {
	ts := newTestServer(t)
	var issued models.RealtimeTokenResponse
	status, _ := ts.do(http.MethodPost, "/api/v1/realtime/token", "A", nil, &issued)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, issued.Token)
	require.True(t, strings.HasPrefix(issued.URL, "/api/v1/realtime/ws?token="))

	req := httptestRequest(http.MethodGet, "/api/v1/conversations", issued.Token)
	rec := serve(ts, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(ts, httptestRequest(http.MethodGet, "/api/v1/realtime/ws?token=garbage", ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateConversationEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var first models.ConversationDetail
	status, _ := ts.do(http.MethodPost, "/api/v1/conversations", "A", obj{
		"participant_ids": []string{"B"},
		"type":            "private",
	}, &first)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, first.Participants, 2)

	var second models.ConversationDetail
	status, _ = ts.do(http.MethodPost, "/api/v1/conversations", "B", obj{
		"participant_ids": []string{"A"},
		"type":            "private",
	}, &second)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, first.ID, second.ID)

	status, env := ts.do(http.MethodPost, "/api/v1/conversations", "A", obj{
		"participant_ids": []string{},
		"type":            "group",
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_ERROR", env.Code)

	status, env = ts.do(http.MethodPost, "/api/v1/conversations", "A", obj{
		"participant_ids": []string{"B"},
		"type":            "channel",
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, env.Error, "type")
}

func TestMessagingFlow(t *testing.T) {
	ts := newTestServer(t)
	conv := ts.createPrivate("A", "B")
	base := fmt.Sprintf("/api/v1/conversations/%s", conv.ID)

	ts.clock.Advance(time.Second)
	var msg models.Message
	status, env := ts.do(http.MethodPost, base+"/messages", "A", obj{"content": "  hello  "}, &msg)
	require.Equal(t, http.StatusCreated, status, env.Error)
	require.Equal(t, "hello", msg.Content)
	require.Equal(t, models.MessageSent, msg.Status)

	var unread map[string]int64
	status, _ = ts.do(http.MethodGet, base+"/unread", "B", nil, &unread)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, unread["unread_count"])

	var updated models.Message
	status, _ = ts.do(http.MethodPut, "/api/v1/messages/"+msg.ID.String()+"/status", "B", obj{"status": "read"}, &updated)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, models.MessageRead, updated.Status)

	status, env = ts.do(http.MethodPut, "/api/v1/messages/"+msg.ID.String()+"/status", "B", obj{"status": "delivered"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_ERROR", env.Code)

	var page models.MessagePage
	status, _ = ts.do(http.MethodGet, base+"/messages?limit=10", "A", nil, &page)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Messages, 1)
	require.Equal(t, models.MessageRead, page.Messages[0].Status)
	require.False(t, page.HasMore)
	require.Nil(t, page.NextCursor)

	status, _ = ts.do(http.MethodPost, base+"/read", "B", nil, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = ts.do(http.MethodGet, base+"/unread", "B", nil, &unread)
	require.Equal(t, http.StatusOK, status)
	require.Zero(t, unread["unread_count"])

	var found []models.Message
	status, _ = ts.do(http.MethodGet, "/api/v1/messages/search?conversationId="+conv.ID.String()+"&query=HELLO", "B", nil, &found)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, found, 1)

	status, env = ts.do(http.MethodDelete, "/api/v1/messages/"+msg.ID.String(), "B", nil, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "NOT_AUTHORIZED", env.Code)

	var deleted models.Message
	status, _ = ts.do(http.MethodDelete, "/api/v1/messages/"+msg.ID.String(), "A", nil, &deleted)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, models.MessageDeleted, deleted.Visibility)
	require.Empty(t, deleted.Content)
}

func TestNonParticipantGets403(t *testing.T) {
	ts := newTestServer(t)
	conv := ts.createPrivate("A", "B")
	base := fmt.Sprintf("/api/v1/conversations/%s", conv.ID)

	for _, tc := range []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodGet, base + "/messages", nil},
		{http.MethodPost, base + "/messages", obj{"content": "hi"}},
		{http.MethodPost, base + "/read", nil},
		{http.MethodGet, base, nil},
		{http.MethodGet, "/api/v1/messages/search?conversationId=" + conv.ID.String() + "&query=x", nil},
	} {
		status, env := ts.do(tc.method, tc.path, "X", tc.body, nil)
		require.Equal(t, http.StatusForbidden, status, tc.path)
		require.Equal(t, "NOT_A_PARTICIPANT", env.Code, tc.path)
	}
}

func TestParticipantEndpoints(t *testing.T) {
	ts := newTestServer(t)
	var conv models.ConversationDetail
	status, _ := ts.do(http.MethodPost, "/api/v1/conversations", "A", obj{
		"participant_ids": []string{"B"},
		"type":            "group",
		"name":            "team",
	}, &conv)
	require.Equal(t, http.StatusCreated, status)
	base := fmt.Sprintf("/api/v1/conversations/%s/participants", conv.ID)

	var added []models.Participant
	status, _ = ts.do(http.MethodPost, base, "A", obj{"user_ids": []string{"B", "C"}}, &added)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, added, 1)

	var removed map[string]bool
	status, _ = ts.do(http.MethodDelete, base+"?targetUserId=B", "A", nil, &removed)
	require.Equal(t, http.StatusOK, status)
	require.True(t, removed["removed"])

	status, _ = ts.do(http.MethodDelete, base+"?targetUserId=B", "A", nil, &removed)
	require.Equal(t, http.StatusOK, status)
	require.False(t, removed["removed"])

	status, env := ts.do(http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages", conv.ID), "B", nil, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "NOT_A_PARTICIPANT", env.Code)

	var list models.ConversationList
	status, _ = ts.do(http.MethodGet, "/api/v1/conversations?limit=5", "C", nil, &list)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, "team", *list.Conversations[0].Name)
}

func TestBadParams(t *testing.T) {
	ts := newTestServer(t)
	status, _ := ts.do(http.MethodGet, "/api/v1/conversations/not-a-uuid/messages", "A", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(http.MethodGet, "/api/v1/conversations?limit=ten", "A", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)

	conv := ts.createPrivate("A", "B")
	status, env := ts.do(http.MethodGet, fmt.Sprintf("/api/v1/conversations/%s/messages?cursor=zzz", conv.ID), "A", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_ERROR", env.Code)
}

func TestPresenceEndpoints(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(http.MethodPost, "/api/v1/presence", "A", obj{"is_online": true}, nil)
	require.Equal(t, http.StatusOK, status)
	ts.clock.Advance(time.Second)
	status, _ = ts.do(http.MethodPost, "/api/v1/presence", "B", obj{"is_online": false}, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := ts.do(http.MethodPost, "/api/v1/presence", "B", obj{}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_ERROR", env.Code)

	var statuses map[string]models.PresenceStatus
	status, _ = ts.do(http.MethodGet, "/api/v1/presence?userIds=A,B,ghost", "C", nil, &statuses)
	require.Equal(t, http.StatusOK, status)
	require.True(t, statuses["A"].IsOnline)
	require.False(t, statuses["B"].IsOnline)
	require.NotNil(t, statuses["B"].LastSeen)
	require.Nil(t, statuses["ghost"].LastSeen)

	var list models.PresenceList
	status, _ = ts.do(http.MethodGet, "/api/v1/presence/online?includeOffline=true", "C", nil, &list)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 2, list.Total)
	require.Equal(t, "A", list.Users[0].UserID)

	ids := make([]string, ts.srv.Config.MaxPresenceBatch+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
	}
	status, env = ts.do(http.MethodGet, "/api/v1/presence?userIds="+strings.Join(ids, ","), "C", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "RATE_LIMITED", env.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	status, env := ts.do(http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)
}
