package middleware

import (
	"context"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"
)

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://app.coachim.io"}

	assert.True(t, OriginAllowed("", allowed))
	assert.True(t, OriginAllowed("https://APP.coachim.io", allowed))
	assert.False(t, OriginAllowed("https://evil.example", allowed))
	assert.False(t, OriginAllowed("https://app.coachim.io", nil))
	assert.True(t, OriginAllowed("https://anything.example", []string{"*"}))
}

func corsRequest(method, origin string) *app.RequestContext {
	c := &app.RequestContext{}
	c.Request.Header.SetMethod(method)
	if origin != "" {
		c.Request.Header.Set("Origin", origin)
	}
	return c
}

func TestCORS_EchoesAllowedOrigin(t *testing.T) {
	c := corsRequest(consts.MethodGet, "https://app.coachim.io")
	CORS([]string{"https://app.coachim.io"})(context.Background(), c)

	assert.Equal(t, "https://app.coachim.io", string(c.Response.Header.Peek("Access-Control-Allow-Origin")))
	assert.Equal(t, "true", string(c.Response.Header.Peek("Access-Control-Allow-Credentials")))
	assert.False(t, c.IsAborted())
}

func TestCORS_RejectedOriginGetsNoHeaders(t *testing.T) {
	c := corsRequest(consts.MethodGet, "https://evil.example")
	CORS([]string{"https://app.coachim.io"})(context.Background(), c)

	assert.Empty(t, c.Response.Header.Peek("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	c := corsRequest(consts.MethodOptions, "https://app.coachim.io")
	CORS([]string{"*"})(context.Background(), c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, consts.StatusNoContent, c.Response.StatusCode())
	assert.Equal(t, "https://app.coachim.io", string(c.Response.Header.Peek("Access-Control-Allow-Origin")))
}
