package store

import (
	"context"
	"errors"
	"time"

	"github.com/Gitisfun/chat-api/internal/models"
)

// 领域错误，调用方用 errors.Is 区分；其余一切 store 错误视为持久化失败。
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomNameConflict = errors.New("room name already exists in tenant")
	ErrMessageNotFound  = errors.New("message not found")
)

// RoomUnread 未读汇总的一行：房间元数据 + 该用户未读的他人消息数。
type RoomUnread struct {
	RoomID      string `json:"roomId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unread      int64  `json:"unread"`
}

// Store 是核心对持久层的全部要求。gorm 实现面向 Postgres，
// Memory 实现同一语义，核心的测试跑在后者上。
type Store interface {
	// CreateRoom 原子创建房间并把创建者写入成员名单。
	// 租户内重名返回 ErrRoomNameConflict。
	CreateRoom(ctx context.Context, room *models.Room) error
	RoomByID(ctx context.Context, id string) (*models.Room, error)
	RoomByName(ctx context.Context, tenantID, name string) (*models.Room, error)
	PublicRooms(ctx context.Context, tenantID string) ([]models.Room, error)
	// AddParticipant 条件追加：已在名单中时静默成功。
	AddParticipant(ctx context.Context, roomID, userID string) error
	Participants(ctx context.Context, roomID string) ([]string, error)
	DeleteRoom(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, msg *models.Message) error
	MessageByID(ctx context.Context, id string) (*models.Message, error)
	// RecentMessages 返回房间最近 limit 条消息，按创建时间升序。
	RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	// ReceiptsFor 按追加顺序返回一批消息的回执。
	ReceiptsFor(ctx context.Context, messageIDs []string) (map[string][]models.ReadReceipt, error)
	// AppendReadReceipts 条件批量追加：只为存在且尚无该 reader 回执的消息
	// 写入 {reader, at}，返回实际新增条数。并发安全，等价 compare-and-append。
	AppendReadReceipts(ctx context.Context, messageIDs []string, readerID string, at time.Time) (int64, error)

	// UnreadSummary 按房间聚合：非本人发送且本人未读的消息数，带房间元数据。
	UnreadSummary(ctx context.Context, tenantID, userID string) ([]RoomUnread, error)
}
