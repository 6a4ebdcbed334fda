package monitor

import (
	"bufio"
	"io"
)

// 終了キー（ESCまたはq）
const (
	keyEscape = 0x1B
	keyQuit   = 'q'
)

// ListenExitKey は入力ストリームを監視し、終了キーが押されたらStopを呼ぶ
// 標準入力が閉じられた場合も監視は続行する（サービス的な起動に対応）
func (m *Monitor) ListenExitKey(r io.Reader) {
	go func() {
		br := bufio.NewReader(r)
		for {
			b, err := br.ReadByte()
			if err != nil {
				return
			}
			if b == keyEscape || b == keyQuit {
				m.Stop()
				return
			}
		}
	}()
}
