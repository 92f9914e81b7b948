// 實時對戰中繼服務器。
//
// 將恰好兩名遠端參與者配對進同一個房間，強制雙方嚴格輪流行動，
// 並在兩者之間中繼不透明的移動數據與對局結束通知。
//
// 核心功能
//
// 房間與會話：
//   - 首次加入未知房間即隱式創建（roomID 由呼叫方決定）
//   - 每房間恰好兩個座位，第三人收到 roomFull 拒絕通知
//   - 加入順序即輪流順序，首位加入者先行
//   - 座位清空或對局結束即刪除房間（狀態不持久化）
//
// 輪流順序：
//   - turnIndex 是回合權的唯一事實來源
//   - 不在回合者的移動被拒（notYourTurn + ack 失敗），不轉發、不變更
//   - 成功的移動原樣轉發給對手，雙方各收到自己的 turnChange
//
// 斷線處理：
//   - 主動退出（exitGame）與異常斷線語義相同
//   - connectionID → roomID 反向索引使清理為 O(1)
//   - 獨守的倖存者收到 opponentLeft，房間退回等待狀態
//
// # WebSocket 通訊
//
// 單一 /ws 端點；消息封套為 {"event", "data", "ackID"}。
// Ping/Pong 心跳檢測死連接（54s/60s），發送經緩衝 channel 異步進行。
//
// 使用範例
//
// 啟動服務器：
//
//	server -port 8080 -log-level debug
//
// 客戶端流程：
//
//	→ {"event":"joinRoom","data":{"roomID":"r1","playerName":"Alice"}}
//	← {"event":"opponentStatus","data":{"status":"online","isTurn":true}}
//	→ {"event":"playerMove","data":{"roomID":"r1","x":1},"ackID":1}
//	← {"event":"moveAck","data":{"ackID":1}}
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Hub 層：WebSocket 連接與房間廣播群組
//   - Coordinator 層：會話狀態機（加入／移動／結束／離開）
//   - Registry 層：房間表與連接反向索引
//   - Room 層：座位與輪次不變式
//
// 協調器只透過 Transport 介面發送通知，測試以記錄型替身
// 精確斷言每個輸入產生的全部外發事件。
package main
