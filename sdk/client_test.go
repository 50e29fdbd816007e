package sdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_WebSocketURL(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://chat.example.com/", "wss://chat.example.com/ws"},
		{"http://10.0.0.1:8080/api", "ws://10.0.0.1:8080/api/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.baseURL, func(t *testing.T) {
			c := MustNewClient(tt.baseURL)
			assert.Equal(t, tt.want, c.WebSocketURL())
		})
	}
}

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

func newAPIServer(t *testing.T, code int, msg string, data any) (*httptest.Server, chan recordedRequest) {
	t.Helper()
	reqs := make(chan recordedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestClient_MarkRead(t *testing.T) {
	srv, reqs := newAPIServer(t, CodeSuccess, "success", map[string]any{"conversation_id": convA, "read_seq": 10})
	c := MustNewClient(srv.URL, WithToken("tok-1"))

	readSeq, err := c.MarkRead(context.Background(), convA, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), readSeq)

	req := <-reqs
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/conversation/mark_read", req.path)
	assert.Equal(t, "Bearer tok-1", req.auth)

	var body MarkReadRequest
	require.NoError(t, json.Unmarshal(req.body, &body))
	assert.Equal(t, convA, body.ConversationId)
	assert.Zero(t, body.ReadSeq)
}

func TestClient_GetHistory(t *testing.T) {
	srv, reqs := newAPIServer(t, CodeSuccess, "success", map[string]any{
		"messages": []map[string]any{{"conversation_id": convA, "seq": 3, "content": "hi", "sender_id": "cl__1"}},
		"max_seq":  3,
	})
	c := MustNewClient(srv.URL, WithToken("tok-1"))

	resp, err := c.GetHistory(context.Background(), convA, 20)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hi", resp.Messages[0].Content)
	assert.Equal(t, int64(3), resp.MaxSeq)

	req := <-reqs
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/msg/history", req.path)
	assert.Contains(t, req.query, "limit=20")
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv, _ := newAPIServer(t, CodeNotParticipant, "not a conversation participant", nil)
	c := MustNewClient(srv.URL)

	_, err := c.GetConversation(context.Background(), convA)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotParticipant)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not a conversation participant", apiErr.Msg)
}

func TestClient_LoginStoresToken(t *testing.T) {
	srv, _ := newAPIServer(t, CodeSuccess, "success", map[string]any{
		"token":     "fresh",
		"user_info": map[string]any{"id": selfId, "role": RoleInstructor},
	})
	c := MustNewClient(srv.URL)

	resp, err := c.Login(context.Background(), &LoginRequest{UserId: selfId, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Token)
	assert.Equal(t, "fresh", c.GetToken())
	require.NotNil(t, resp.UserInfo)
	assert.Equal(t, RoleInstructor, resp.UserInfo.Role)
}
