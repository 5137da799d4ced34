package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Gitisfun/chat-api/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 1 << 20 // 1MB
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 是一条 WebSocket 连接。id 由服务端生成，身份信息在
// connect-identity 之后才存在于 Registry。
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	// tenant 供租户范围的通告过滤。重复 identify 可能改写它，
	// 而 Announce 在别的 goroutine 上读，所以同样挂在 mu 下。
	tenant string
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// ID 连接标识，Registry 的键。
func (c *Client) ID() string { return c.id }

func (c *Client) setTenant(t string) {
	c.mu.Lock()
	c.tenant = t
	c.mu.Unlock()
}

func (c *Client) tenantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tenant
}

// trySend 非阻塞入队。连接已关闭或缓冲写满返回 false，
// 由调用方决定要不要摘除这个连接。
func (c *Client) trySend(data []byte) bool {
	if data == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend 关闭发送通道让 writePump 退出。幂等。
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Serve 升级 WebSocket 并启动读写泵。身份登记走首个
// connect-identity 事件，不在握手阶段做。
func Serve(gw *Gateway) gin.HandlerFunc {
	return func(gc *gin.Context) {
		conn, err := upgrader.Upgrade(gc.Writer, gc.Request, nil)
		if err != nil {
			return
		}
		client := newClient(conn)
		metrics.WsConnections.Inc()
		log.Debug().Str("conn_id", client.id).Msg("ws connected")

		go client.writePump()
		client.readPump(gw)
	}
}

// readPump 串行消费这条连接的事件，顺序即到达顺序。
// 返回前完成拆除，保证之后的广播不会再命中本连接。
func (c *Client) readPump(gw *Gateway) {
	defer func() {
		gw.Disconnect(c)
		c.closeSend()
		_ = c.conn.Close()
		metrics.WsConnections.Dec()
		log.Debug().Str("conn_id", c.id).Msg("ws disconnected")
	}()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		ev, err := DecodeInbound(data)
		if err != nil {
			log.Debug().Err(err).Str("conn_id", c.id).Msg("bad frame")
			c.trySend(encode("error", ErrorNotice{Message: errInvalidPayload}))
			continue
		}
		gw.Dispatch(context.Background(), c, ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
