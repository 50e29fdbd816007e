package gateway

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
)

// HandleHertzConnection authenticates the handshake and upgrades it. The upgrade
// callback runs the client's read loop and returns when the connection ends.
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(consts.StatusServiceUnavailable, "connection limit exceeded")
		return
	}

	token := c.Query(QueryToken)
	sendId := c.Query(QuerySendId)
	sdkType := c.Query(QuerySDKType)

	if token == "" || sendId == "" {
		c.String(consts.StatusBadRequest, "missing required parameters")
		return
	}

	claims, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
		c.String(consts.StatusUnauthorized, "unauthorized")
		return
	}
	if claims.UserId != sendId {
		log.CtxDebug(ctx, "token user mismatch: send_id=%s, user_id=%s", sendId, claims.UserId)
		c.String(consts.StatusUnauthorized, "unauthorized")
		return
	}

	platformId := claims.PlatformId
	if p := c.Query(QueryPlatformId); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed != platformId {
			c.String(consts.StatusUnauthorized, "platform mismatch")
			return
		}
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		client := NewClient(newHertzConn(conn, s.connOptions()), claims.UserId, claims.Role, platformId, sdkType, token, uuid.NewString(), s)
		s.registerChan <- client
		client.readLoop()
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
	}
}
