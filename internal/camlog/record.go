// Package camlog はカメラ状態のCSVログを担う
package camlog

import "time"

// レコードのタイムスタンプに使うフォーマット
const TimestampLayout = "2006-01-02 15:04:05"

// Status はレコードに記録するカメラの状態
type Status string

const (
	StatusOnline  Status = "ONLINE"  // フレームを取得できている
	StatusOffline Status = "OFFLINE" // フレームを取得できていない
)

// Record はカメラ状態ログの1レコード
// 一度書き込まれたレコードは変更されない
type Record struct {
	Timestamp    time.Time // 記録時刻
	CameraAddr   string    // カメラのIPアドレス
	Status       Status    // カメラの状態
	SnapshotFile string    // 同じサイクルで保存されたスナップショットのパス
}

// CSVHeader はCSVのヘッダー行を返す
func CSVHeader() []string {
	return []string{"timestamp", "camera_ip", "status", "snapshot_file"}
}

// CSVRow はレコードをCSVの1行に変換する
func (r Record) CSVRow() []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		r.CameraAddr,
		string(r.Status),
		r.SnapshotFile,
	}
}
