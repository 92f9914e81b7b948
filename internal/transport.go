package internal

import "encoding/json"

// Transport 外部實時連接層。
//
// 協調器透過它發送通知，不關心底層是 WebSocket 還是測試替身。
// 所有發送都是 fire-and-forget：無背壓、無送達確認，
// 被靜默丟棄的通知就是丟了（對局層的 ack 由 AckFunc 單獨承載）。
type Transport interface {
	// Send 發送事件給單一連接。
	Send(connectionID, event string, payload any)
	// Broadcast 廣播事件給房間內所有連接（含發送者）。
	Broadcast(roomID, event string, payload any)
	// BroadcastExcept 廣播事件給房間內除指定連接外的所有連接。
	BroadcastExcept(roomID, exceptConnectionID, event string, payload any)
	// JoinGroup 將連接加入房間的廣播群組。
	JoinGroup(roomID, connectionID string)
	// LeaveGroup 將連接移出房間的廣播群組。冪等。
	LeaveGroup(roomID, connectionID string)
}

// AckFunc 移動操作的可選回執。err 為 nil 表示成功。
// 客戶端未要求回執時為 nil。
type AckFunc func(err error)

// 入站事件名稱（客戶端 → 服務器）。
const (
	EventJoinRoom   = "joinRoom"
	EventPlayerMove = "playerMove"
	EventGameOver   = "gameOver"
	EventExitGame   = "exitGame"
)

// 出站事件名稱（服務器 → 客戶端）。
const (
	EventOpponentStatus = "opponentStatus"
	EventNotYourTurn    = "notYourTurn"
	EventTurnChange     = "turnChange"
	EventGameResult     = "gameResult"
	EventRoomFull       = "roomFull"
	EventOpponentLeft   = "opponentLeft"
	EventError          = "errorEvent"
	EventMoveAck        = "moveAck"
)

// Envelope 線路消息封套。入站與出站共用同一形狀；
// Data 對移動事件保持原始字節，中繼時原樣轉發、不解析內容。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID int64           `json:"ackID,omitempty"`
}

// OpponentStatusPayload 雙方到齊時逐一發送；
// 對手離開時以 status=offline 復用同一形狀。
type OpponentStatusPayload struct {
	Status string `json:"status"`
	IsTurn bool   `json:"isTurn"`
}

// TurnChangePayload 每次移動後逐座位發送。
type TurnChangePayload struct {
	IsTurn bool `json:"isTurn"`
}

// GameResultPayload 對局結束廣播（含發送者）。
// TargetReached 由呼叫方提供、服務器不解讀。
type GameResultPayload struct {
	SenderConnectionID string          `json:"senderConnectionID"`
	TargetReached      json.RawMessage `json:"targetReached"`
}

// RoomFullPayload 第三人加入已滿房間時發給加入者。
type RoomFullPayload struct {
	RoomID string `json:"roomID"`
}

// ErrorPayload 可恢復錯誤的外發形式。
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MoveAckPayload 移動回執：錯誤為空即成功。
type MoveAckPayload struct {
	AckID int64  `json:"ackID"`
	Error string `json:"error,omitempty"`
}
