package gateway

import (
	"sync"
	"time"

	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
)

// ConnOptions tunes a live connection
type ConnOptions struct {
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	WriteChannelSize int
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = MaxMessageSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.WriteChannelSize <= 0 {
		o.WriteChannelSize = 256
	}
	return o
}

// hertzConn implements ClientConn over hertz-contrib/websocket.
// All writes go through writeLoop, the connection's single writer.
type hertzConn struct {
	conn      *websocket.Conn
	opts      ConnOptions
	writeChan chan []byte
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
	closeChan chan struct{}
}

// newHertzConn wraps conn and starts its write loop
func newHertzConn(conn *websocket.Conn, opts ConnOptions) *hertzConn {
	opts = opts.withDefaults()
	c := &hertzConn{
		conn:      conn,
		opts:      opts,
		writeChan: make(chan []byte, opts.WriteChannelSize),
		closeChan: make(chan struct{}),
	}

	conn.SetReadLimit(opts.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.writeLoop()
	return c
}

func (c *hertzConn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			log.Debug("writeLoop recovered from panic: %v", r)
		}
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.writeChan:
			if !ok {
				c.safeWrite(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.safeWrite(websocket.TextMessage, message); err != nil {
				log.Debug("write message error: %v", err)
				return
			}

		case <-ticker.C:
			if err := c.safeWrite(websocket.PingMessage, nil); err != nil {
				log.Debug("ping error: %v", err)
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

func (c *hertzConn) safeWrite(messageType int, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("safeWrite recovered from panic: %v", r)
			err = ErrConnClosed
		}
	}()

	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.conn.WriteMessage(messageType, data)
}

// ReadMessage reads a message, failing when no frame or pong arrives within PongWait
func (c *hertzConn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	_, message, err := c.conn.ReadMessage()
	return message, err
}

// WriteMessage queues a message; a full queue means a slow consumer and fails fast
func (c *hertzConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.writeChan <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

// Close closes the connection
func (c *hertzConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()

		close(c.closeChan)
	})
	return nil
}
