package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
)

// Coordinator 會話協調器：核心狀態機。
//
// 解讀每個入站事件，變更註冊表與房間，並透過 Transport 發出通知。
// 每個房間的狀態機：空 → 等待（1 座）→ 對戰（2 座）→ [終態：刪除]。
// 對局結束不保留 finished 狀態：gameOver 直接刪除房間。
//
// 錯誤傳播策略：所有錯誤條件（房間已滿、不在回合、房間不存在）
// 都在此就地轉換為外發通知或 ack 失敗，絕不讓故障終止進程或連接。
type Coordinator struct {
	registry  *Registry
	transport Transport
	logger    *slog.Logger
}

// NewCoordinator 創建會話協調器。
func NewCoordinator(registry *Registry, transport Transport, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		registry:  registry,
		transport: transport,
		logger:    logger,
	}
}

// HandleJoin 處理加入房間。
//
// 流程：
//   - 房間已滿兩座：拒絕，向加入者發送 roomFull（不變更任何狀態）
//   - 否則：取得或創建房間，追加座位，加入廣播群組，綁定反向索引
//   - 座位到達兩個：向每個座位「個別」發送 opponentStatus
//     （不走廣播，因為每人要拿到自己的回合旗標）
//   - 單人等待中：不發任何通知
//
// roomID 與 playerName 的有效性不做驗證，空值與重複值照單全收。
// 唯一的防禦：已在某房間的連接不得再加入另一個房間，
// 否則反向索引被覆蓋後，舊座位將永遠無法清理。
func (c *Coordinator) HandleJoin(roomID, playerName, connectionID string) {
	if boundRoom, bound := c.registry.RoomOf(connectionID); bound && boundRoom != roomID {
		c.logger.Warn("連接已在其他房間，拒絕加入",
			"room_id", roomID,
			"bound_room", boundRoom,
			"connection_id", connectionID)
		c.transport.Send(connectionID, EventError, ErrorPayload{
			Code:    "alreadyInRoom",
			Message: ErrAlreadySeated.Error(),
		})
		return
	}

	var flags []SeatTurn
	for {
		room := c.registry.GetOrCreate(roomID)

		seated, err := room.AddSeat(connectionID, playerName)
		if err != nil {
			switch {
			case errors.Is(err, ErrRoomFull):
				c.logger.Info("房間已滿，拒絕加入",
					"room_id", roomID,
					"connection_id", connectionID)
				c.transport.Send(connectionID, EventRoomFull, RoomFullPayload{RoomID: roomID})
			case errors.Is(err, ErrAlreadySeated):
				c.logger.Warn("連接重複加入同一房間",
					"room_id", roomID,
					"connection_id", connectionID)
			}
			return
		}
		c.registry.Bind(connectionID, roomID)

		// 複驗：取得房間到座位落定之間，清理路徑可能剛好把房間刪掉。
		// 註冊表裡的條目仍是同一個實例才算落定，否則撤銷重來。
		if current, exists := c.registry.Get(roomID); exists && current == room {
			flags = seated
			break
		}
		room.RemoveSeat(connectionID)
		c.registry.Unbind(connectionID)
	}

	c.transport.JoinGroup(roomID, connectionID)

	c.logger.Info("玩家加入房間",
		"room_id", roomID,
		"connection_id", connectionID,
		"player_name", playerName)

	// 雙方到齊，對局開始的信號
	if activeSeats(flags) == MaxSeats {
		for _, st := range flags {
			c.transport.Send(st.Seat.ConnectionID, EventOpponentStatus, OpponentStatusPayload{
				Status: "online",
				IsTurn: st.HasTurn,
			})
		}
	}
}

// HandleMove 處理移動。
//
// 流程：
//   - 房間不存在：向呼叫者發送 errorEvent，ack 帶失敗後返回（可恢復，不崩潰）
//   - 呼叫者不持有回合權：發送 notYourTurn，ack 帶 "Not your turn"，不變更、不轉發
//   - 否則：原樣轉發 payload 給房間內其他連接，推進輪次，
//     逐座位發送 turnChange，ack 帶成功
//
// payload 是遊戲特定的移動編碼，這裡不驗證、不解析。
func (c *Coordinator) HandleMove(roomID string, payload json.RawMessage, connectionID string, ack AckFunc) {
	room, exists := c.registry.Get(roomID)
	if !exists {
		c.logger.Warn("移動指向不存在的房間",
			"room_id", roomID,
			"connection_id", connectionID)
		c.transport.Send(connectionID, EventError, ErrorPayload{
			Code:    "roomNotFound",
			Message: ErrRoomNotFound.Error(),
		})
		if ack != nil {
			ack(ErrRoomNotFound)
		}
		return
	}

	flags, err := room.ApplyMove(connectionID)
	if err != nil {
		c.transport.Send(connectionID, EventNotYourTurn, nil)
		if ack != nil {
			ack(ErrNotYourTurn)
		}
		return
	}

	// 先轉發移動，再通知輪次變更
	c.transport.BroadcastExcept(roomID, connectionID, EventPlayerMove, payload)
	for _, st := range flags {
		c.transport.Send(st.Seat.ConnectionID, EventTurnChange, TurnChangePayload{
			IsTurn: st.HasTurn,
		})
	}

	if ack != nil {
		ack(nil)
	}
}

// HandleGameOver 處理對局結束。
//
// 向整個房間（含發送者）廣播 gameResult，然後無條件刪除房間，
// 不論還剩幾個座位、也不論廣播是否成功。
// targetReached 由呼叫方提供，決定勝負的語義屬於遊戲層。
func (c *Coordinator) HandleGameOver(roomID string, targetReached json.RawMessage, connectionID string) {
	room, exists := c.registry.Get(roomID)
	if !exists {
		c.transport.Send(connectionID, EventError, ErrorPayload{
			Code:    "roomNotFound",
			Message: ErrRoomNotFound.Error(),
		})
		return
	}

	c.transport.Broadcast(roomID, EventGameResult, GameResultPayload{
		SenderConnectionID: connectionID,
		TargetReached:      targetReached,
	})

	for _, seat := range room.Seats() {
		c.transport.LeaveGroup(roomID, seat.ConnectionID)
	}
	c.registry.Remove(roomID)

	c.logger.Info("對局結束，房間已刪除",
		"room_id", roomID,
		"connection_id", connectionID)
}

// HandleExit 處理客戶端的主動退出請求。
func (c *Coordinator) HandleExit(connectionID string) {
	c.removeConnection(connectionID, "exit")
}

// HandleDisconnect 處理傳輸層偵測到的連接丟失。語義與退出相同。
func (c *Coordinator) HandleDisconnect(connectionID string) {
	c.removeConnection(connectionID, "disconnect")
}

// removeConnection 將連接從其所屬房間移除。
//
// 透過反向索引直接定位房間（取代逐房間掃描）：
// 一個連接最多屬於一個房間，觀察行為與全表掃描一致。
// 座位清空則刪除房間；留下獨守者則通知 opponentLeft，
// 房間退回等待狀態、倖存座位持有回合權。
func (c *Coordinator) removeConnection(connectionID, cause string) {
	roomID, bound := c.registry.RoomOf(connectionID)
	if !bound {
		return
	}

	room, exists := c.registry.Get(roomID)
	if !exists {
		c.registry.Unbind(connectionID)
		return
	}

	survivor, removed := room.RemoveSeat(connectionID)
	c.registry.Unbind(connectionID)
	c.transport.LeaveGroup(roomID, connectionID)
	if !removed {
		return
	}

	c.logger.Info("玩家離開房間",
		"room_id", roomID,
		"connection_id", connectionID,
		"cause", cause)

	if c.registry.RemoveIfEmpty(roomID) {
		return
	}

	if survivor != nil {
		c.transport.Send(survivor.ConnectionID, EventOpponentLeft, OpponentStatusPayload{
			Status: "offline",
			IsTurn: true, // 獨守者即首位座位，回合權歸它
		})
	}
}

// activeSeats 計數 active 的座位。
func activeSeats(flags []SeatTurn) int {
	count := 0
	for _, st := range flags {
		if st.Seat.Active {
			count++
		}
	}
	return count
}
