package models

import "time"

// 房间可见性。私有房间不出现在公开列表里，也不触发 rooms:new 广播。
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// 消息类型。system 消息由服务端生成。
const (
	MessageKindText   = "text"
	MessageKindSystem = "system"
)

// Room 房间名在租户内唯一，跨租户允许重名。
type Room struct {
	ID          string `gorm:"primaryKey;size:36"`
	TenantID    string `gorm:"size:64;not null;uniqueIndex:idx_rooms_tenant_name,priority:1"`
	Name        string `gorm:"size:128;not null;uniqueIndex:idx_rooms_tenant_name,priority:2"`
	Description string `gorm:"size:512"`
	Visibility  string `gorm:"size:16;not null;default:public"`
	CreatorID   string `gorm:"size:64;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoomParticipant 房间成员名单。复合主键承载"条件追加"语义：
// 重复加入走 ON CONFLICT DO NOTHING，名单只增不减。
type RoomParticipant struct {
	RoomID    string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

// Message 创建后不可变，已读回执单独成表追加。
type Message struct {
	ID         string `gorm:"primaryKey;size:36"`
	RoomID     string `gorm:"index:idx_msg_room_id;size:36;not null"`
	TenantID   string `gorm:"size:64;not null"`
	SenderID   string `gorm:"size:64;not null"`
	SenderName string `gorm:"size:64;not null"`
	Content    string `gorm:"type:text;not null"`
	Kind       string `gorm:"size:16;not null;default:text"`
	CreatedAt  time.Time
}

// ReadReceipt 每个 (message, reader) 至多一条，只追加不删除。
type ReadReceipt struct {
	MessageID string    `gorm:"primaryKey;size:36"`
	ReaderID  string    `gorm:"primaryKey;size:64"`
	ReadAt    time.Time `gorm:"not null"`
}

// User REST 边界的注册用户，与 WebSocket 会话里客户端自报的 userId 是两套标识。
type User struct {
	ID           uint   `gorm:"primaryKey"`
	TenantID     string `gorm:"size:64;not null;uniqueIndex:idx_users_tenant_name,priority:1"`
	Username     string `gorm:"size:64;not null;uniqueIndex:idx_users_tenant_name,priority:2"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
