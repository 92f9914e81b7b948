package internal_test

import (
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/koopa0/system-design/14-game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestRegistry_GetOrCreate 測試惰性創建
func TestRegistry_GetOrCreate(t *testing.T) {
	registry := internal.NewRegistry(testLogger())

	room := registry.GetOrCreate("r1")
	require.NotNil(t, room)
	assert.Equal(t, "r1", room.ID)
	assert.Equal(t, 1, registry.RoomCount())

	// 再次取得必須是同一個實例
	again := registry.GetOrCreate("r1")
	assert.Same(t, room, again)
	assert.Equal(t, 1, registry.RoomCount())
}

// TestRegistry_Get 測試查找不創建
func TestRegistry_Get(t *testing.T) {
	registry := internal.NewRegistry(testLogger())

	_, exists := registry.Get("missing")
	assert.False(t, exists)
	assert.Equal(t, 0, registry.RoomCount(), "Get 不應創建房間")

	created := registry.GetOrCreate("r1")
	found, exists := registry.Get("r1")
	require.True(t, exists)
	assert.Same(t, created, found)
}

// TestRegistry_Remove 測試刪除與冪等性
func TestRegistry_Remove(t *testing.T) {
	registry := internal.NewRegistry(testLogger())

	registry.GetOrCreate("r1")
	registry.Bind("conn_a", "r1")
	registry.Bind("conn_b", "r1")

	registry.Remove("r1")

	_, exists := registry.Get("r1")
	assert.False(t, exists)

	// 綁定也要一起清掉
	_, bound := registry.RoomOf("conn_a")
	assert.False(t, bound)
	_, bound = registry.RoomOf("conn_b")
	assert.False(t, bound)

	// 冪等
	registry.Remove("r1")
	assert.Equal(t, 0, registry.RoomCount())
}

// TestRegistry_ReverseIndex 測試連接反向索引
func TestRegistry_ReverseIndex(t *testing.T) {
	registry := internal.NewRegistry(testLogger())

	registry.GetOrCreate("r1")
	registry.Bind("conn_a", "r1")

	roomID, bound := registry.RoomOf("conn_a")
	require.True(t, bound)
	assert.Equal(t, "r1", roomID)

	registry.Unbind("conn_a")
	_, bound = registry.RoomOf("conn_a")
	assert.False(t, bound)

	// Unbind 冪等
	registry.Unbind("conn_a")
}

// TestRegistry_ForEach 測試遍歷
func TestRegistry_ForEach(t *testing.T) {
	registry := internal.NewRegistry(testLogger())

	for i := 0; i < 5; i++ {
		registry.GetOrCreate(fmt.Sprintf("r%d", i))
	}

	seen := make(map[string]bool)
	registry.ForEach(func(roomID string, room *internal.Room) {
		seen[roomID] = true
	})

	assert.Len(t, seen, 5)
}

// TestRegistry_Stats 測試統計資訊
func TestRegistry_Stats(t *testing.T) {
	registry := internal.NewRegistry(testLogger())

	waiting := registry.GetOrCreate("waiting")
	_, err := waiting.AddSeat("conn_a", "Alice")
	require.NoError(t, err)
	registry.Bind("conn_a", "waiting")

	active := registry.GetOrCreate("active")
	_, err = active.AddSeat("conn_b", "Bob")
	require.NoError(t, err)
	_, err = active.AddSeat("conn_c", "Carol")
	require.NoError(t, err)
	registry.Bind("conn_b", "active")
	registry.Bind("conn_c", "active")

	stats := registry.Stats()
	assert.Equal(t, 2, stats["total_rooms"])
	assert.Equal(t, 3, stats["total_seats"])
	assert.Equal(t, 1, stats["rooms_waiting"])
	assert.Equal(t, 1, stats["rooms_active"])
	assert.Equal(t, 3, stats["bindings"])
}
