package camera

import (
	"bytes"
	"testing"
)

// makeJPEG はテスト用の擬似JPEGフレームを作成する
func makeJPEG(payload byte) []byte {
	return []byte{0xFF, 0xD8, 0x00, payload, 0xFF, 0xD9}
}

// TestFrameScannerSingleFrame は1フレームの切り出しをテストする
func TestFrameScannerSingleFrame(t *testing.T) {
	scanner := newFrameScanner()
	frame := makeJPEG(0x01)

	frames := scanner.Feed(frame)
	if len(frames) != 1 {
		t.Fatalf("予期しないフレーム数: got %d, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("フレームの内容が一致しません: got %v, want %v", frames[0], frame)
	}
}

// TestFrameScannerMultipleFrames は複数フレームの一括切り出しをテストする
func TestFrameScannerMultipleFrames(t *testing.T) {
	scanner := newFrameScanner()
	f1 := makeJPEG(0x01)
	f2 := makeJPEG(0x02)
	f3 := makeJPEG(0x03)

	var input []byte
	input = append(input, f1...)
	input = append(input, f2...)
	input = append(input, f3...)

	frames := scanner.Feed(input)
	if len(frames) != 3 {
		t.Fatalf("予期しないフレーム数: got %d, want 3", len(frames))
	}
	for i, want := range [][]byte{f1, f2, f3} {
		if !bytes.Equal(frames[i], want) {
			t.Errorf("フレーム%dの内容が一致しません: got %v, want %v", i, frames[i], want)
		}
	}
}

// TestFrameScannerSplitFeed はフレームが分割して届く場合をテストする
func TestFrameScannerSplitFeed(t *testing.T) {
	scanner := newFrameScanner()
	frame := makeJPEG(0x05)

	// 前半だけではフレームは完成しない
	frames := scanner.Feed(frame[:3])
	if len(frames) != 0 {
		t.Fatalf("不完全な入力からフレームが切り出されました: %d", len(frames))
	}

	// 残りを与えると完全なフレームになる
	frames = scanner.Feed(frame[3:])
	if len(frames) != 1 {
		t.Fatalf("予期しないフレーム数: got %d, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("フレームの内容が一致しません: got %v, want %v", frames[0], frame)
	}
}

// TestFrameScannerLeadingGarbage はマーカー前のごみデータの破棄をテストする
func TestFrameScannerLeadingGarbage(t *testing.T) {
	scanner := newFrameScanner()
	frame := makeJPEG(0x07)

	input := append([]byte{0x00, 0x11, 0x22}, frame...)
	frames := scanner.Feed(input)
	if len(frames) != 1 {
		t.Fatalf("予期しないフレーム数: got %d, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("フレームの内容が一致しません: got %v, want %v", frames[0], frame)
	}
}

// TestFrameScannerNoMarker はマーカーのない入力をテストする
func TestFrameScannerNoMarker(t *testing.T) {
	scanner := newFrameScanner()

	frames := scanner.Feed([]byte{0x00, 0x01, 0x02, 0x03})
	if len(frames) != 0 {
		t.Errorf("マーカーのない入力からフレームが切り出されました: %d", len(frames))
	}
}
