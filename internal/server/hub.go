package server

import "sync"

// Hub はフレームを複数の視聴者へ配信する
// 監視ループが配信元、各HTTPクライアントが購読者になる
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int]chan []byte
	nextID      int

	// 最新フレーム保持用
	latest []byte
}

// NewHub は新しいHubを作成する
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[int]chan []byte),
	}
}

// Publish はフレームを全購読者へ配信し、最新フレームとして保持する
func (h *Hub) Publish(frame []byte) {
	// フレームのコピーを保持（呼び出し側のバッファ再利用に備える）
	buf := make([]byte, len(frame))
	copy(buf, frame)

	h.mu.Lock()
	h.latest = buf
	for _, ch := range h.subscribers {
		// チャンネルがフルの場合は古いフレームを破棄
		select {
		case ch <- buf:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- buf:
			default:
			}
		}
	}
	h.mu.Unlock()
}

// Latest は最後に配信されたフレームを返す
// まだフレームがない場合はnilを返す
func (h *Hub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Subscribe はフレーム購読を開始する
// 返されたキャンセル関数で購読を解除する
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan []byte, 10)
	h.subscribers[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}

	return ch, cancel
}
