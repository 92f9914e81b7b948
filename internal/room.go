package internal

import (
	"errors"
	"sync"
	"time"
)

// 系統設計問題：
//   如何在多個併發房間之間，嚴格維護兩人對戰的輪流順序？
//
// 核心挑戰：
//   1. 容量控制：每個房間恰好兩個座位（第三人必須被拒絕）
//   2. 輪次追蹤：任何時刻只有一個座位持有回合權
//   3. 生命週期：加入、移動、主動退出、異常斷線四種事件任意交錯
//   4. 併發安全：多個連接的事件可能同時落在同一個房間
//
// 設計方案：
//   ✅ turnIndex 單一事實來源 - 座位的回合旗標在通知時才推導
//   ✅ 有序座位列表 - 加入順序即輪流順序
//   ✅ 複合操作 + Mutex - 每個事件對房間的讀改寫是一個原子步驟
//   ✅ 移除時修復索引 - turnIndex 永遠落在 [0, len(seats)) 之內

// 領域錯誤：全部在協調器內就地處理，轉換為外發通知或 ack 失敗，
// 不會作為未捕獲故障向外傳播。
var (
	ErrRoomFull      = errors.New("room is full")
	ErrRoomNotFound  = errors.New("room not found")
	ErrAlreadySeated = errors.New("connection already seated")

	// ErrNotYourTurn 的訊息即 ack 回傳給客戶端的字面內容。
	ErrNotYourTurn = errors.New("Not your turn")
)

// MaxSeats 每個房間的座位上限。
const MaxSeats = 2

// Seat 房間中一個參與者的狀態。
type Seat struct {
	ConnectionID string    `json:"connection_id"`
	DisplayName  string    `json:"display_name"`
	Active       bool      `json:"active"` // 目前恆為 true，保留給未來的半斷線狀態
	JoinedAt     time.Time `json:"joined_at"`
}

// SeatTurn 一個座位與其推導出的回合旗標的配對。
//
// 回合旗標不儲存在 Seat 上：turnIndex 是唯一的事實來源，
// 旗標只在構建外發通知的瞬間推導，消除「旗標與索引不一致」這一類錯誤。
type SeatTurn struct {
	Seat    *Seat
	HasTurn bool
}

// Room 一場進行中的兩人對戰。
//
// 系統設計考量：
//
//  1. 併發控制（Mutex）：
//     問題：同一房間可能同時收到加入、移動、退出事件
//     方案：每個房間自帶互斥鎖，每個複合操作（檢查 + 變更 + 快照）
//     在單次持鎖期間完成，事件之間不會觀察到撕裂的中間狀態
//
//  2. 輪次演算：
//     turnIndex = (turnIndex + 1) % len(seats)
//     模數取自「當前」座位數，因此進位前必須保證 len(seats) >= 1
//
//  3. 容量不變式：
//     len(seats) <= MaxSeats 恆成立；第一個加入的座位無條件獲得回合權
type Room struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	mu        sync.Mutex
	seats     []*Seat
	turnIndex int
}

// NewRoom 創建空房間。座位列表為空，turnIndex 為 0。
func NewRoom(id string) *Room {
	now := time.Now()
	return &Room{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddSeat 加入一個座位，返回加入後所有座位的回合快照。
//
// 規則：
//   - 容量已滿返回 ErrRoomFull，不做任何變更
//   - 同一連接重複入座返回 ErrAlreadySeated（防禦性檢查，
//     正常流程下協調器不會讓同一連接加入兩次）
//   - 第一個座位落在索引 0，而 turnIndex 初始即 0，
//     因此首位加入者無條件持有回合權
func (r *Room) AddSeat(connectionID, displayName string) ([]SeatTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.seats) >= MaxSeats {
		return nil, ErrRoomFull
	}

	for _, s := range r.seats {
		if s.ConnectionID == connectionID {
			return nil, ErrAlreadySeated
		}
	}

	r.seats = append(r.seats, &Seat{
		ConnectionID: connectionID,
		DisplayName:  displayName,
		Active:       true,
		JoinedAt:     time.Now(),
	})
	r.UpdatedAt = time.Now()

	return r.turnSnapshot(), nil
}

// ApplyMove 驗證回合權並推進輪次，返回推進後的回合快照。
//
// 不持有回合權的連接返回 ErrNotYourTurn，房間狀態不變。
// 空房間同樣視為無回合權（防禦 mod 0）。
func (r *Room) ApplyMove(connectionID string) ([]SeatTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.seats) == 0 {
		return nil, ErrNotYourTurn
	}

	if r.seats[r.turnIndex].ConnectionID != connectionID {
		return nil, ErrNotYourTurn
	}

	r.turnIndex = (r.turnIndex + 1) % len(r.seats)
	r.UpdatedAt = time.Now()

	return r.turnSnapshot(), nil
}

// RemoveSeat 移除指定連接的座位。
//
// 返回移除後倖存的座位（沒有則為 nil），以及是否確實移除了座位。
// 移除後修復 turnIndex，保證它仍落在 [0, len(seats)) 之內；
// 只剩一人時該座位必然持有回合權（索引歸 0）。
func (r *Room) RemoveSeat(connectionID string) (*Seat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, s := range r.seats {
		if s.ConnectionID == connectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	r.seats = append(r.seats[:idx], r.seats[idx+1:]...)
	r.UpdatedAt = time.Now()

	// 修復輪次索引
	if len(r.seats) == 0 {
		r.turnIndex = 0
	} else {
		if idx < r.turnIndex {
			r.turnIndex--
		}
		if r.turnIndex >= len(r.seats) {
			r.turnIndex = 0
		}
	}

	if len(r.seats) == 1 {
		return r.seats[0], true
	}
	return nil, true
}

// CurrentSeat 返回當前持有回合權的座位。空房間返回 false。
func (r *Room) CurrentSeat() (*Seat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.seats) == 0 {
		return nil, false
	}
	return r.seats[r.turnIndex], true
}

// TurnFlags 返回所有座位的回合快照。
func (r *Room) TurnFlags() []SeatTurn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turnSnapshot()
}

// Seats 返回座位列表的快照（按加入順序）。
func (r *Room) Seats() []*Seat {
	r.mu.Lock()
	defer r.mu.Unlock()

	seats := make([]*Seat, len(r.seats))
	copy(seats, r.seats)
	return seats
}

// SeatCount 返回座位數量。
func (r *Room) SeatCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seats)
}

// IsEmpty 房間是否已無座位。
func (r *Room) IsEmpty() bool {
	return r.SeatCount() == 0
}

// HasSeat 指定連接是否佔有座位。
func (r *Room) HasSeat(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.seats {
		if s.ConnectionID == connectionID {
			return true
		}
	}
	return false
}

// turnSnapshot 推導每個座位的回合旗標（內部使用，需要持有鎖）。
func (r *Room) turnSnapshot() []SeatTurn {
	snapshot := make([]SeatTurn, len(r.seats))
	for i, s := range r.seats {
		snapshot[i] = SeatTurn{
			Seat:    s,
			HasTurn: i == r.turnIndex,
		}
	}
	return snapshot
}
