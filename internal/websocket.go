package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把「每個參與者一條連接」的實時層，與房間狀態機乾淨地隔開？
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接與房間廣播群組
//   ✅ 連接 ID（UUID）- 傳輸層指派，狀態機只認 ID 不碰連接
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel - 異步發送（不阻塞事件處理）
//
// Hub 實現 Transport 介面；協調器對它的所有呼叫都是 fire-and-forget。

// Hub WebSocket 連接中心。
//
// 連接映射分兩層：
//   - conns:  connectionID → Conn（單播定位）
//   - groups: roomID → connectionID 集合（房間廣播群組）
//
// 群組成員資格由協調器透過 JoinGroup / LeaveGroup 維護，
// Hub 自己只在連接關閉時做兜底清理。
type Hub struct {
	coordinator *Coordinator
	logger      *slog.Logger
	upgrader    websocket.Upgrader

	mu     sync.RWMutex
	conns  map[string]*Conn
	groups map[string]map[string]bool
}

// Conn 一條 WebSocket 連接。
type Conn struct {
	ID        string
	ws        *websocket.Conn
	send      chan []byte
	hub       *Hub
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewHub 創建 WebSocket Hub。
//
// allowedOrigin 為空表示允許所有來源（開發模式）；
// 非空時只接受空 Origin 或以它為前綴的來源。
func NewHub(logger *slog.Logger, allowedOrigin string) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || strings.HasPrefix(origin, allowedOrigin)
			},
		},
		conns:  make(map[string]*Conn),
		groups: make(map[string]map[string]bool),
	}
}

// SetCoordinator 注入協調器。
// Hub 與協調器互相引用（Hub 分派入站事件、協調器經 Hub 發通知），
// 因此先建構 Hub、再建構協調器、最後回填。
func (hub *Hub) SetCoordinator(c *Coordinator) {
	hub.coordinator = c
}

// ServeWS 處理 WebSocket 連接。
//
// 每條連接獲得一個 UUID 作為連接 ID；
// 加入哪個房間由之後的 joinRoom 事件決定，這裡不帶任何參數。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	conn := &Conn{
		ID:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, 256),
		hub:  hub,
	}

	hub.register(conn)

	go conn.writePump()
	go conn.readPump()

	hub.logger.Info("玩家已連線", "connection_id", conn.ID)
}

// register 註冊連接。
func (hub *Hub) register(conn *Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.conns[conn.ID] = conn
}

// unregister 取消註冊連接，並從所有廣播群組移除（兜底清理）。
func (hub *Hub) unregister(conn *Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.conns[conn.ID]; !exists || actual != conn {
		return
	}
	delete(hub.conns, conn.ID)

	for roomID, members := range hub.groups {
		if members[conn.ID] {
			delete(members, conn.ID)
			if len(members) == 0 {
				delete(hub.groups, roomID)
			}
		}
	}

	conn.closeOnce.Do(func() {
		close(conn.send)
	})
}

// Send 發送事件給單一連接。實現 Transport。
//
// 投遞必須在讀鎖內完成：unregister 在寫鎖內關閉 send channel，
// 鎖外投遞會與關閉競爭，觸發 send on closed channel 的 panic。
func (hub *Hub) Send(connectionID, event string, payload any) {
	message, ok := hub.encode(event, payload)
	if !ok {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if conn, exists := hub.conns[connectionID]; exists {
		hub.deliver(conn, message)
	}
}

// Broadcast 廣播事件給房間內所有連接（含發送者）。實現 Transport。
func (hub *Hub) Broadcast(roomID, event string, payload any) {
	hub.broadcast(roomID, "", event, payload)
}

// BroadcastExcept 廣播事件給房間內除指定連接外的所有連接。實現 Transport。
func (hub *Hub) BroadcastExcept(roomID, exceptConnectionID, event string, payload any) {
	hub.broadcast(roomID, exceptConnectionID, event, payload)
}

func (hub *Hub) broadcast(roomID, exceptConnectionID, event string, payload any) {
	message, ok := hub.encode(event, payload)
	if !ok {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for connID := range hub.groups[roomID] {
		if connID == exceptConnectionID {
			continue
		}
		if conn, exists := hub.conns[connID]; exists {
			hub.deliver(conn, message)
		}
	}
}

// JoinGroup 將連接加入房間的廣播群組。實現 Transport。
func (hub *Hub) JoinGroup(roomID, connectionID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.groups[roomID] == nil {
		hub.groups[roomID] = make(map[string]bool)
	}
	hub.groups[roomID][connectionID] = true
}

// LeaveGroup 將連接移出房間的廣播群組。冪等。實現 Transport。
func (hub *Hub) LeaveGroup(roomID, connectionID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if members, exists := hub.groups[roomID]; exists {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(hub.groups, roomID)
		}
	}
}

// encode 序列化外發封套。
func (hub *Hub) encode(event string, payload any) ([]byte, bool) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			hub.logger.Error("序列化外發事件失敗", "event", event, "error", err)
			return nil, false
		}
		data = encoded
	}

	message, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		hub.logger.Error("序列化封套失敗", "event", event, "error", err)
		return nil, false
	}
	return message, true
}

// deliver 非阻塞投遞到連接的發送緩衝（內部使用，需要持有 hub.mu）。
// 緩衝滿時丟棄（fire-and-forget：慢客戶端不能拖累整個房間）。
func (hub *Hub) deliver(conn *Conn, message []byte) {
	select {
	case conn.send <- message:
	default:
		hub.logger.Warn("連接緩衝區滿，丟棄消息", "connection_id", conn.ID)
	}
}

// ConnectionCount 獲取當前連接數。
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}

// GroupCounts 獲取每個房間群組的連接數。
func (hub *Hub) GroupCounts() map[string]int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	result := make(map[string]int, len(hub.groups))
	for roomID, members := range hub.groups {
		result[roomID] = len(members)
	}
	return result
}

// Stop 關閉所有連接。
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, conn := range hub.conns {
		conn.closeOnce.Do(func() {
			close(conn.send)
		})
		conn.ws.Close()
	}
	hub.conns = make(map[string]*Conn)
	hub.groups = make(map[string]map[string]bool)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端消息。
//
// 心跳機制（讀取端）：60 秒內沒有任何消息（含 Pong）即判定死連接。
// 配合 writePump 的 54 秒 Ping，留 6 秒網絡余量。
// 連接斷開（讀取出錯）即觸發 disconnect 清理，
// 這是「異常斷線」信號進入狀態機的唯一入口。
func (c *Conn) readPump() {
	defer func() {
		c.hub.coordinator.HandleDisconnect(c.ID)
		c.hub.unregister(c)
		c.ws.Close()
	}()

	if err := c.ws.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"connection_id", c.ID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

// writePump 寫入消息到客戶端。
//
// 心跳機制（發送端）：54 秒 Ping 週期，避開常見的 60 秒代理超時。
// 發送經由緩衝 channel 異步進行，批量清空隊列中積壓的消息。
func (c *Conn) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// 入站事件的資料形狀。移動事件只解出 roomID，其餘內容原樣中繼。
type joinRoomData struct {
	RoomID     string `json:"roomID"`
	PlayerName string `json:"playerName"`
}

type moveData struct {
	RoomID string `json:"roomID"`
}

type gameOverData struct {
	RoomID        string          `json:"roomID"`
	TargetReached json.RawMessage `json:"targetReached"`
}

// handleMessage 解析入站封套並分派給協調器。
func (c *Conn) handleMessage(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.hub.logger.Error("解析客戶端消息失敗",
			"error", err,
			"connection_id", c.ID)
		return
	}

	switch env.Event {
	case EventJoinRoom:
		var d joinRoomData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.hub.logger.Error("解析 joinRoom 失敗", "error", err, "connection_id", c.ID)
			return
		}
		c.hub.coordinator.HandleJoin(d.RoomID, d.PlayerName, c.ID)

	case EventPlayerMove:
		var d moveData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.hub.logger.Error("解析 playerMove 失敗", "error", err, "connection_id", c.ID)
			return
		}
		c.hub.coordinator.HandleMove(d.RoomID, env.Data, c.ID, c.ackFunc(env.AckID))

	case EventGameOver:
		var d gameOverData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.hub.logger.Error("解析 gameOver 失敗", "error", err, "connection_id", c.ID)
			return
		}
		c.hub.coordinator.HandleGameOver(d.RoomID, d.TargetReached, c.ID)

	case EventExitGame:
		// 退出不看 payload 裡的 roomID：反向索引已經知道連接在哪個房間
		c.hub.coordinator.HandleExit(c.ID)

	default:
		c.hub.logger.Debug("收到未知事件",
			"event", env.Event,
			"connection_id", c.ID)
	}
}

// ackFunc 為帶 ackID 的移動構建回執函數；客戶端未要求回執時返回 nil。
func (c *Conn) ackFunc(ackID int64) AckFunc {
	if ackID == 0 {
		return nil
	}
	return func(err error) {
		payload := MoveAckPayload{AckID: ackID}
		if err != nil {
			payload.Error = err.Error()
		}
		c.hub.Send(c.ID, EventMoveAck, payload)
	}
}
