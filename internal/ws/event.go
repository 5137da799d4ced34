package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gitisfun/chat-api/internal/models"
)

// 入站事件名。集合是封闭的：新增事件要同时改 DecodeInbound 和
// Gateway.Dispatch 的 type switch，漏一处编译期就会暴露。
const (
	evConnectIdentity = "connect-identity"
	evRoomJoin        = "room:join"
	evRoomLeave       = "room:leave"
	evRoomCreate      = "room:create"
	evRoomUsers       = "room:users"
	evMessageSend     = "message:send"
	evMessageRead     = "message:read"
	evMessagesRead    = "messages:read"
	evTypingStart     = "typing:start"
	evTypingStop      = "typing:stop"
)

// Inbound 是客户端事件的封闭变体集。
type Inbound interface{ inbound() }

type ConnectIdentity struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type LeaveRoom struct{}

type CreateRoom struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
	TenantID    string `json:"tenantId"`
}

type ListRoomUsers struct{}

type SendMessage struct {
	Content string `json:"content"`
}

type MarkRead struct {
	MessageID string `json:"messageId"`
}

type MarkReadMany struct {
	MessageIDs []string `json:"messageIds"`
}

type TypingStart struct{}

type TypingStop struct{}

func (ConnectIdentity) inbound() {}
func (JoinRoom) inbound()        {}
func (LeaveRoom) inbound()       {}
func (CreateRoom) inbound()      {}
func (ListRoomUsers) inbound()   {}
func (SendMessage) inbound()     {}
func (MarkRead) inbound()        {}
func (MarkReadMany) inbound()    {}
func (TypingStart) inbound()     {}
func (TypingStop) inbound()      {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeInbound 把原始帧解成具体事件。未知类型和坏载荷都报错，
// 由调用方转成 error 事件回给发起连接。
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	decode := func(v Inbound) (Inbound, error) {
		if len(env.Data) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return v, nil
	}
	switch env.Type {
	case evConnectIdentity:
		return decode(&ConnectIdentity{})
	case evRoomJoin:
		return decode(&JoinRoom{})
	case evRoomLeave:
		return &LeaveRoom{}, nil
	case evRoomCreate:
		return decode(&CreateRoom{})
	case evRoomUsers:
		return &ListRoomUsers{}, nil
	case evMessageSend:
		return decode(&SendMessage{})
	case evMessageRead:
		return decode(&MarkRead{})
	case evMessagesRead:
		return decode(&MarkReadMany{})
	case evTypingStart:
		return &TypingStart{}, nil
	case evTypingStop:
		return &TypingStop{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// 出站事件的载荷。所有出站帧都是 {"type": ..., "data": ...}。

type RoomSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Visibility  string    `json:"visibility"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ReceiptDTO struct {
	ReaderID string    `json:"readerId"`
	ReadAt   time.Time `json:"readAt"`
}

type MessageDTO struct {
	ID        string       `json:"id"`
	RoomID    string       `json:"roomId"`
	SenderID  string       `json:"senderId"`
	Sender    string       `json:"sender"`
	Content   string       `json:"content"`
	Kind      string       `json:"kind"`
	Receipts  []ReceiptDTO `json:"receipts"`
	CreatedAt time.Time    `json:"createdAt"`
}

type RoomJoined struct {
	Room     RoomSummary  `json:"room"`
	Messages []MessageDTO `json:"messages"`
}

type UserNotice struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

type RoomUserDTO struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type ReadNotice struct {
	MessageID string     `json:"messageId"`
	Receipt   ReceiptDTO `json:"receipt"`
}

type ReadManyNotice struct {
	MessageIDs []string   `json:"messageIds"`
	Receipt    ReceiptDTO `json:"receipt"`
}

type ReadSuccess struct {
	MessageID string `json:"messageId"`
	Modified  int64  `json:"modified"`
}

type ReadManySuccess struct {
	MessageIDs []string `json:"messageIds"`
	Modified   int64    `json:"modified"`
}

type TypingNotice struct {
	Username string `json:"username"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}

func roomSummary(r *models.Room) RoomSummary {
	return RoomSummary{ID: r.ID, Name: r.Name, Description: r.Description, Visibility: r.Visibility, CreatedAt: r.CreatedAt}
}

func messageDTO(m *models.Message, receipts []models.ReadReceipt) MessageDTO {
	dto := MessageDTO{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Sender:    m.SenderName,
		Content:   m.Content,
		Kind:      m.Kind,
		Receipts:  make([]ReceiptDTO, 0, len(receipts)),
		CreatedAt: m.CreatedAt,
	}
	for _, r := range receipts {
		dto.Receipts = append(dto.Receipts, ReceiptDTO{ReaderID: r.ReaderID, ReadAt: r.ReadAt})
	}
	return dto
}

// encode 序列化一个出站帧。载荷都是本包定义的可序列化结构，
// 失败意味着编程错误，返回 nil 由发送端丢弃。
func encode(eventType string, payload any) []byte {
	b, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: eventType, Data: payload})
	if err != nil {
		return nil
	}
	return b
}
