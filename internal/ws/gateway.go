package ws

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Gitisfun/chat-api/internal/config"
	"github.com/Gitisfun/chat-api/internal/metrics"
	"github.com/Gitisfun/chat-api/internal/models"
	"github.com/Gitisfun/chat-api/internal/store"
)

// 回给发起连接的 error 事件文案。任何错误都不会断开连接。
const (
	errUnauthenticated = "unauthenticated"
	errNotInRoom       = "you are not in a room"
	errRoomNotFound    = "room not found"
	errNameConflict    = "room name already exists"
	errMessageNotFound = "message not found"
	errPersistence     = "operation failed, try again"
	errInvalidPayload  = "invalid payload"
)

// Gateway 把入站事件翻译成注册表、hub 和持久层上的操作。
// 每条连接的事件由它自己的 readPump 串行投递，跨连接的并发
// 由 Registry/Hub/Store 各自兜住。
type Gateway struct {
	store store.Store
	reg   *Registry
	hub   *Hub
	cfg   config.Config
}

func NewGateway(st store.Store, reg *Registry, hub *Hub, cfg config.Config) *Gateway {
	return &Gateway{store: st, reg: reg, hub: hub, cfg: cfg}
}

// Dispatch 对封闭事件集做穷尽匹配，一个事件恰好进一个 handler。
func (g *Gateway) Dispatch(ctx context.Context, c *Client, ev Inbound) {
	switch e := ev.(type) {
	case *ConnectIdentity:
		g.identify(ctx, c, e)
	case *JoinRoom:
		g.join(ctx, c, e)
	case *LeaveRoom:
		g.leave(c)
	case *CreateRoom:
		g.createRoom(ctx, c, e)
	case *ListRoomUsers:
		g.listRoomUsers(c)
	case *SendMessage:
		g.sendMessage(ctx, c, e)
	case *MarkRead:
		g.markRead(ctx, c, e)
	case *MarkReadMany:
		g.markReadMany(ctx, c, e)
	case *TypingStart:
		g.typing(c, evTypingStart)
	case *TypingStop:
		g.typing(c, evTypingStop)
	default:
		g.sendError(c, errInvalidPayload)
	}
}

// identify 登记会话并回发公开房间列表。tenant 缺省落到配置的默认租户。
func (g *Gateway) identify(ctx context.Context, c *Client, ev *ConnectIdentity) {
	if ev.UserID == "" {
		g.sendError(c, errUnauthenticated)
		return
	}
	tenant := ev.TenantID
	if tenant == "" {
		tenant = g.cfg.DefaultTenant
	}
	name := ev.Username
	if name == "" {
		name = ev.UserID
	}
	// 重复 identify 覆盖旧会话。旧会话还在房间里时先走一遍离开，
	// 否则注册表说不在房间而广播组还挂着这条连接。
	if prev, ok := g.reg.Get(c.id); ok && prev.RoomID != "" {
		g.hub.Unsubscribe(c, prev.RoomID)
		g.hub.BroadcastRoom(prev.RoomID, encode("user:left", UserNotice{
			Username: prev.DisplayName,
			Text:     prev.DisplayName + " left the room",
		}), nil)
	}
	g.reg.Register(c.id, ev.UserID, name, tenant)
	c.setTenant(tenant)
	g.hub.Add(c)

	rooms, err := g.store.PublicRooms(ctx, tenant)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenant).Msg("list public rooms")
		g.sendError(c, errPersistence)
		return
	}
	out := make([]RoomSummary, 0, len(rooms))
	for i := range rooms {
		out = append(out, roomSummary(&rooms[i]))
	}
	c.trySend(encode("rooms:list", out))
}

// join 切换连接到新房间。换房时先退老房并向老房广播离开通知；
// 名单追加是尽力而为，失败只记日志不影响加入。
func (g *Gateway) join(ctx context.Context, c *Client, ev *JoinRoom) {
	sess, ok := g.reg.Get(c.id)
	if !ok {
		g.sendError(c, errUnauthenticated)
		return
	}
	room, err := g.store.RoomByID(ctx, ev.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			g.sendError(c, errRoomNotFound)
		} else {
			log.Error().Err(err).Str("room_id", ev.RoomID).Msg("join lookup room")
			g.sendError(c, errPersistence)
		}
		return
	}

	if sess.RoomID != "" {
		g.hub.Unsubscribe(c, sess.RoomID)
		g.reg.SetRoom(c.id, "")
		g.hub.BroadcastRoom(sess.RoomID, encode("user:left", UserNotice{
			Username: sess.DisplayName,
			Text:     sess.DisplayName + " left the room",
		}), nil)
	}

	g.hub.Subscribe(c, room.ID)
	g.reg.SetRoom(c.id, room.ID)

	if err := g.store.AddParticipant(ctx, room.ID, sess.UserID); err != nil {
		log.Warn().Err(err).Str("room_id", room.ID).Str("user_id", sess.UserID).Msg("append participant")
	}

	history := g.history(ctx, room.ID)
	c.trySend(encode("room:joined", RoomJoined{Room: roomSummary(room), Messages: history}))
	g.hub.BroadcastRoom(room.ID, encode("user:joined", UserNotice{
		Username: sess.DisplayName,
		Text:     sess.DisplayName + " joined the room",
	}), c)
}

// history 取最近消息并拼上回执，读失败降级为空列表。
func (g *Gateway) history(ctx context.Context, roomID string) []MessageDTO {
	msgs, err := g.store.RecentMessages(ctx, roomID, g.cfg.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("load history")
		return []MessageDTO{}
	}
	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
	}
	receipts, err := g.store.ReceiptsFor(ctx, ids)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("load receipts")
		receipts = nil
	}
	out := make([]MessageDTO, 0, len(msgs))
	for i := range msgs {
		out = append(out, messageDTO(&msgs[i], receipts[msgs[i].ID]))
	}
	return out
}

// leave 未入房时是静默 no-op；离开不修改持久化的成员名单。
func (g *Gateway) leave(c *Client) {
	sess, ok := g.reg.Get(c.id)
	if !ok || sess.RoomID == "" {
		return
	}
	g.hub.Unsubscribe(c, sess.RoomID)
	g.reg.SetRoom(c.id, "")
	g.hub.BroadcastRoom(sess.RoomID, encode("user:left", UserNotice{
		Username: sess.DisplayName,
		Text:     sess.DisplayName + " left the room",
	}), nil)
}

// sendMessage 先落库再按存储回填的 id/时间广播给全房间（含发送者），
// 发送者以权威存储副本对齐本地视图。落库失败只通知发送者。
func (g *Gateway) sendMessage(ctx context.Context, c *Client, ev *SendMessage) {
	sess, ok := g.reg.Get(c.id)
	if !ok {
		g.sendError(c, errUnauthenticated)
		return
	}
	if sess.RoomID == "" {
		g.sendError(c, errNotInRoom)
		return
	}
	content := strings.TrimSpace(ev.Content)
	if content == "" || len(content) > g.cfg.MaxMessageLength {
		g.sendError(c, errInvalidPayload)
		return
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		RoomID:     sess.RoomID,
		TenantID:   sess.TenantID,
		SenderID:   sess.UserID,
		SenderName: sess.DisplayName,
		Content:    content,
		Kind:       models.MessageKindText,
		CreatedAt:  time.Now().UTC(),
	}
	if err := g.store.CreateMessage(ctx, &msg); err != nil {
		log.Error().Err(err).Str("room_id", sess.RoomID).Msg("persist message")
		g.sendError(c, errPersistence)
		return
	}
	metrics.WsMessagesTotal.Inc()
	g.hub.BroadcastRoom(sess.RoomID, encode("message:new", messageDTO(&msg, nil)), nil)
}

// markRead 幂等：重复标记静默成功，不产生第二次广播。
func (g *Gateway) markRead(ctx context.Context, c *Client, ev *MarkRead) {
	sess, ok := g.reg.Get(c.id)
	if !ok {
		g.sendError(c, errUnauthenticated)
		return
	}
	if _, err := g.store.MessageByID(ctx, ev.MessageID); err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			g.sendError(c, errMessageNotFound)
		} else {
			log.Error().Err(err).Str("message_id", ev.MessageID).Msg("mark read lookup")
			g.sendError(c, errPersistence)
		}
		return
	}

	now := time.Now().UTC()
	modified, err := g.store.AppendReadReceipts(ctx, []string{ev.MessageID}, sess.UserID, now)
	if err != nil {
		log.Error().Err(err).Str("message_id", ev.MessageID).Msg("append receipt")
		g.sendError(c, errPersistence)
		return
	}
	if modified > 0 {
		metrics.ReadReceiptsTotal.Add(float64(modified))
		if sess.RoomID != "" {
			g.hub.BroadcastRoom(sess.RoomID, encode("message:read", ReadNotice{
				MessageID: ev.MessageID,
				Receipt:   ReceiptDTO{ReaderID: sess.UserID, ReadAt: now},
			}), nil)
		}
	}
	c.trySend(encode("message:read:success", ReadSuccess{MessageID: ev.MessageID, Modified: modified}))
}

// markReadMany 条件批量追加，广播一次并带上完整 id 列表；
// 没有任何新增时只回执成功，不打扰房间。
func (g *Gateway) markReadMany(ctx context.Context, c *Client, ev *MarkReadMany) {
	sess, ok := g.reg.Get(c.id)
	if !ok {
		g.sendError(c, errUnauthenticated)
		return
	}
	now := time.Now().UTC()
	modified, err := g.store.AppendReadReceipts(ctx, ev.MessageIDs, sess.UserID, now)
	if err != nil {
		log.Error().Err(err).Int("count", len(ev.MessageIDs)).Msg("append receipts")
		g.sendError(c, errPersistence)
		return
	}
	if modified > 0 {
		metrics.ReadReceiptsTotal.Add(float64(modified))
		if sess.RoomID != "" {
			g.hub.BroadcastRoom(sess.RoomID, encode("messages:read", ReadManyNotice{
				MessageIDs: ev.MessageIDs,
				Receipt:    ReceiptDTO{ReaderID: sess.UserID, ReadAt: now},
			}), nil)
		}
	}
	c.trySend(encode("messages:read:success", ReadManySuccess{MessageIDs: ev.MessageIDs, Modified: modified}))
}

// typing 纯临态广播：不落库、不去重，连发就重播。
func (g *Gateway) typing(c *Client, eventType string) {
	sess, ok := g.reg.Get(c.id)
	if !ok || sess.RoomID == "" {
		return
	}
	g.hub.BroadcastRoom(sess.RoomID, encode(eventType, TypingNotice{Username: sess.DisplayName}), c)
}

// createRoom 建房并把创建者写进名单。公开房间按配置向全体
// 或本租户通告 rooms:new。
func (g *Gateway) createRoom(ctx context.Context, c *Client, ev *CreateRoom) {
	sess, ok := g.reg.Get(c.id)
	if !ok {
		g.sendError(c, errUnauthenticated)
		return
	}
	name := strings.TrimSpace(ev.Name)
	if name == "" || len(name) > 128 {
		g.sendError(c, errInvalidPayload)
		return
	}
	tenant := ev.TenantID
	if tenant == "" {
		tenant = sess.TenantID
	}
	visibility := models.VisibilityPublic
	if ev.IsPrivate {
		visibility = models.VisibilityPrivate
	}

	now := time.Now().UTC()
	room := models.Room{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		Name:        name,
		Description: ev.Description,
		Visibility:  visibility,
		CreatorID:   sess.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.CreateRoom(ctx, &room); err != nil {
		if errors.Is(err, store.ErrRoomNameConflict) {
			g.sendError(c, errNameConflict)
		} else {
			log.Error().Err(err).Str("tenant", tenant).Str("name", name).Msg("create room")
			g.sendError(c, errPersistence)
		}
		return
	}

	c.trySend(encode("room:created", roomSummary(&room)))
	if visibility == models.VisibilityPublic {
		scope := tenant
		if g.cfg.RoomsNewGlobal {
			scope = ""
		}
		g.hub.Announce(encode("rooms:new", roomSummary(&room)), scope)
	}
}

// listRoomUsers 从注册表扫同房会话，不查持久化名单。
func (g *Gateway) listRoomUsers(c *Client) {
	sess, ok := g.reg.Get(c.id)
	if !ok {
		g.sendError(c, errUnauthenticated)
		return
	}
	if sess.RoomID == "" {
		g.sendError(c, errNotInRoom)
		return
	}
	others := g.reg.InRoom(sess.RoomID, c.id)
	out := make([]RoomUserDTO, 0, len(others))
	for _, s := range others {
		out = append(out, RoomUserDTO{UserID: s.UserID, Username: s.DisplayName})
	}
	c.trySend(encode("room:users", out))
}

// Disconnect 同步拆除：先出 hub 再删会话，之后对该连接 id 的
// 任何广播都不可能命中它。
func (g *Gateway) Disconnect(c *Client) {
	g.hub.Remove(c)
	sess, ok := g.reg.Remove(c.id)
	if !ok {
		return
	}
	if sess.RoomID != "" {
		g.hub.BroadcastRoom(sess.RoomID, encode("user:left", UserNotice{
			Username: sess.DisplayName,
			Text:     sess.DisplayName + " left the room",
		}), nil)
	}
}

func (g *Gateway) sendError(c *Client, msg string) {
	c.trySend(encode("error", ErrorNotice{Message: msg}))
}
