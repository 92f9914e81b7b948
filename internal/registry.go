package internal

import (
	"log/slog"
	"sync"
)

// Registry 房間註冊表：roomID → Room 映射的唯一擁有者。
//
// 系統設計考量：
//
//  1. 顯式實例而非全域變數：
//     註冊表由協調器持有，生命週期隨服務進程；
//     測試中可以並存多個互不干擾的註冊表
//
//  2. 反向索引（connRoom）：
//     問題：斷線時只拿得到連接 ID，不知道它屬於哪個房間
//     方案：connectionID → roomID 索引，加入時綁定、移除時解除
//     效果：斷線清理從 O(rooms × seats) 全表掃描降為 O(1) 查找
//
//  3. 惰性創建：
//     條目只在首次加入未知房間時創建（GetOrCreate），
//     在座位清空或對局結束時刪除
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	connRoom map[string]string // connectionID -> roomID
	logger   *slog.Logger
}

// NewRegistry 創建房間註冊表。
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		connRoom: make(map[string]string),
		logger:   logger,
	}
}

// GetOrCreate 返回既有房間，不存在則創建空房間。永不失敗。
func (reg *Registry) GetOrCreate(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, exists := reg.rooms[roomID]; exists {
		return room
	}

	room := NewRoom(roomID)
	reg.rooms[roomID] = room
	reg.logger.Info("房間已創建", "room_id", roomID)
	return room
}

// Get 查找房間，不創建。
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, exists := reg.rooms[roomID]
	return room, exists
}

// Remove 刪除房間及指向它的所有連接綁定。冪等：不存在時為 no-op。
func (reg *Registry) Remove(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[roomID]; !exists {
		return
	}

	delete(reg.rooms, roomID)
	for connID, rid := range reg.connRoom {
		if rid == roomID {
			delete(reg.connRoom, connID)
		}
	}

	reg.logger.Info("房間已移除", "room_id", roomID)
}

// RemoveIfEmpty 複查房間確實無座位後才刪除，返回是否刪除。
//
// 清理路徑專用：座位清空與刪除之間可能插入併發的加入，
// 在持鎖狀態下複查座位數，有人補位就保留房間。
func (reg *Registry) RemoveIfEmpty(roomID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.rooms[roomID]
	if !exists || room.SeatCount() != 0 {
		return false
	}

	delete(reg.rooms, roomID)
	for connID, rid := range reg.connRoom {
		if rid == roomID {
			delete(reg.connRoom, connID)
		}
	}

	reg.logger.Info("房間已移除", "room_id", roomID)
	return true
}

// Bind 記錄連接所屬的房間。
func (reg *Registry) Bind(connectionID, roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.connRoom[connectionID] = roomID
}

// Unbind 解除連接與房間的綁定。冪等。
func (reg *Registry) Unbind(connectionID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.connRoom, connectionID)
}

// RoomOf 反向查找連接所屬的房間。
func (reg *Registry) RoomOf(connectionID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	roomID, exists := reg.connRoom[connectionID]
	return roomID, exists
}

// ForEach 遍歷所有房間。fn 在持讀鎖的快照上執行，
// 供統計與測試使用（清理路徑已改用反向索引）。
func (reg *Registry) ForEach(fn func(roomID string, room *Room)) {
	reg.mu.RLock()
	snapshot := make(map[string]*Room, len(reg.rooms))
	for id, room := range reg.rooms {
		snapshot[id] = room
	}
	reg.mu.RUnlock()

	for id, room := range snapshot {
		fn(id, room)
	}
}

// RoomCount 返回房間數量。
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Stats 獲取統計資訊。
func (reg *Registry) Stats() map[string]any {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	totalBindings := len(reg.connRoom)
	reg.mu.RUnlock()

	totalSeats := 0
	waiting := 0
	active := 0
	for _, room := range rooms {
		count := room.SeatCount()
		totalSeats += count
		switch count {
		case MaxSeats:
			active++
		default:
			waiting++
		}
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_seats":   totalSeats,
		"rooms_waiting": waiting,
		"rooms_active":  active,
		"bindings":      totalBindings,
	}
}
