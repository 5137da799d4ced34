package ws

import "sync"

// Session 是一条连接到用户身份与当前房间的绑定，只存在于内存。
type Session struct {
	ConnID      string
	UserID      string
	DisplayName string
	TenantID    string
	// RoomID 为空表示未加入任何房间。非空时该连接必然已订阅对应广播组，
	// 两者的更新由单条连接事件串行处理来保证一致。
	RoomID string
}

// Registry 按连接 id 管理所有在线会话。随服务启动创建、停止销毁，
// 不做包级单例。所有方法并发安全。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register 建立会话，初始不在任何房间。重复注册覆盖旧会话。
func (r *Registry) Register(connID, userID, displayName, tenantID string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &Session{ConnID: connID, UserID: userID, DisplayName: displayName, TenantID: tenantID}
	r.sessions[connID] = s
	return *s
}

// Get 返回会话的副本，未知连接返回 false。
func (r *Registry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// SetRoom 更新会话的当前房间，roomID 为空表示离开。
func (r *Registry) SetRoom(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return false
	}
	s.RoomID = roomID
	return true
}

// Remove 删除会话并返回删除前的内容，供断线时通知原房间。
func (r *Registry) Remove(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connID)
	return *s, true
}

// InRoom 扫描全表，返回当前房间为 roomID 的所有会话快照，
// 可排除一条连接（通常是发起查询的人）。
func (r *Registry) InRoom(roomID, exceptConnID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Session
	for id, s := range r.sessions {
		if id == exceptConnID || s.RoomID != roomID {
			continue
		}
		out = append(out, *s)
	}
	return out
}

// Len 当前在线会话数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
