package ws

import (
	"sync"

	"github.com/Gitisfun/chat-api/internal/metrics"
)

// Hub 维护房间级广播组和全量连接集合。发送走各连接的带缓冲 send
// channel，写满视为掉队，直接关闭并移除，不阻塞其他成员。
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	all   map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		all:   make(map[*Client]struct{}),
	}
}

// Add 把完成身份登记的连接纳入全量集合，此后才能收到 rooms:new 通告。
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
}

// Remove 断线清理：退出全量集合和所在房间。对已移除的连接再调用是无害的。
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	delete(h.all, c)
	for roomID, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// Subscribe 把连接加入房间广播组。
func (h *Hub) Subscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
}

// Unsubscribe 把连接移出房间广播组，空房间即回收。
func (h *Hub) Unsubscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastRoom 向房间所有成员发送，except 非 nil 时跳过该连接。
func (h *Hub) BroadcastRoom(roomID string, data []byte, except *Client) {
	h.mu.RLock()
	var dead []*Client
	for c := range h.rooms[roomID] {
		if c == except {
			continue
		}
		if !c.trySend(data) {
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()
	metrics.WsBroadcastsTotal.Inc()
	h.reap(dead)
}

// Announce 向连接集合发送通告。tenantID 为空发给所有人，
// 否则只发给该租户的连接。
func (h *Hub) Announce(data []byte, tenantID string) {
	h.mu.RLock()
	var dead []*Client
	for c := range h.all {
		if tenantID != "" && c.tenantID() != tenantID {
			continue
		}
		if !c.trySend(data) {
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()
	h.reap(dead)
}

// reap 摘除发送缓冲已满的连接，关闭其 send 让 writePump 退出。
func (h *Hub) reap(dead []*Client) {
	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range dead {
		h.removeLocked(c)
		c.closeSend()
	}
}

// Online 房间当前订阅数，供 REST 列表复用。
func (h *Hub) Online(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
