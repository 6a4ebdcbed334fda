package server

import (
	"bytes"
	"testing"
)

// TestHubLatest は最新フレームの保持をテストする
func TestHubLatest(t *testing.T) {
	hub := NewHub()

	if hub.Latest() != nil {
		t.Error("フレーム配信前にLatestが値を返しました")
	}

	f1 := []byte{0x01}
	f2 := []byte{0x02}
	hub.Publish(f1)
	hub.Publish(f2)

	if got := hub.Latest(); !bytes.Equal(got, f2) {
		t.Errorf("最新フレームが一致しません: got %v, want %v", got, f2)
	}
}

// TestHubSubscribe は購読者へのフレーム配信をテストする
func TestHubSubscribe(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe()
	defer cancel()

	frame := []byte{0xAA, 0xBB}
	hub.Publish(frame)

	select {
	case got := <-ch:
		if !bytes.Equal(got, frame) {
			t.Errorf("配信フレームが一致しません: got %v, want %v", got, frame)
		}
	default:
		t.Fatal("フレームが配信されていません")
	}
}

// TestHubSubscribeCancel は購読解除後に配信されないことをテストする
func TestHubSubscribeCancel(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe()
	cancel()

	hub.Publish([]byte{0x01})

	select {
	case <-ch:
		t.Error("購読解除後にフレームが配信されました")
	default:
	}
}

// TestHubDropOldest は購読者が遅い場合の古いフレーム破棄をテストする
func TestHubDropOldest(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe()
	defer cancel()

	// バッファサイズを超えて配信する
	for i := 0; i < 30; i++ {
		hub.Publish([]byte{byte(i)})
	}

	// 最後に配信されたフレームは必ず受信できる
	var last []byte
	for {
		select {
		case frame := <-ch:
			last = frame
			continue
		default:
		}
		break
	}

	if last == nil {
		t.Fatal("フレームが1枚も受信できませんでした")
	}
	if last[0] != 29 {
		t.Errorf("最後のフレームが受信できていません: got %d, want 29", last[0])
	}
}

// TestHubCopiesFrame は配信フレームが呼び出し側のバッファと独立していることをテストする
func TestHubCopiesFrame(t *testing.T) {
	hub := NewHub()

	buf := []byte{0x01, 0x02}
	hub.Publish(buf)

	// 呼び出し側がバッファを書き換えても保持フレームは変わらない
	buf[0] = 0xFF

	if got := hub.Latest(); got[0] != 0x01 {
		t.Errorf("保持フレームが書き換えの影響を受けています: got %v", got)
	}
}
