// Package monitor は監視ループ全体の制御を担う
//
// # 責務
// - カメラからの定常的なフレーム取得とビューワーへの転送
// - 一定間隔でのスナップショット保存・ログ記録・Git公開
// - フレーム取得失敗時の退避と再試行
//
// # 仕様
// - ループは単一ゴルーチンで動作し、各サイクルの副作用は逐次実行される
// - 間隔の判定には単調増加クロックを使用する
// - ストリーム接続失敗以外のエラーで停止しない（可用性優先）
package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"mihari/internal/camlog"
	"mihari/internal/config"
	"mihari/internal/publish"
	"mihari/internal/snapshot"
)

// State は監視ループの状態を表す
type State string

const (
	StateDisplaying   State = "displaying"   // フレームを表示中
	StateSnapshotting State = "snapshotting" // スナップショット保存中
	StateLogging      State = "logging"      // ログ書き込み中
	StatePublishing   State = "publishing"   // Git公開中
	StateStalled      State = "stalled"      // フレーム取得に失敗して退避中
	StateStopped      State = "stopped"      // 停止済み
)

// Source は監視ループが必要とするフレーム取得機能
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// RecordWriter はステータスレコードの書き込み機能
type RecordWriter interface {
	Write(record camlog.Record) error
}

// Publisher は変更の公開機能
type Publisher interface {
	Publish(ctx context.Context, now time.Time) (publish.Result, error)
}

// FrameSink は表示用のフレーム転送先
type FrameSink interface {
	Publish(frame []byte)
}

// Status は監視ループの現在状態のスナップショット
type Status struct {
	SessionID    string    `json:"session_id"`    // 起動ごとの一意識別子
	State        State     `json:"state"`         // 現在の状態
	CameraStatus string    `json:"camera_status"` // 直近のカメラ状態 (ONLINE/OFFLINE)
	CycleCount   int       `json:"cycle_count"`   // 完了したサイクル数
	StallCount   int       `json:"stall_count"`   // フレーム取得に失敗した回数
	LastCycle    time.Time `json:"last_cycle"`    // 最後にサイクルが完了した時刻
	LastSnapshot string    `json:"last_snapshot"` // 最後に保存したスナップショットのパス
	StartedAt    time.Time `json:"started_at"`    // 監視の開始時刻
}

// Monitor は監視ループを制御する
type Monitor struct {
	cfg       *config.Config
	source    Source
	archiver  snapshot.Archiver
	logWriter RecordWriter
	publisher Publisher
	sink      FrameSink

	sessionID string

	// 状態共有用
	mu     sync.RWMutex
	status Status

	// 制御用
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New は新しいMonitorを作成する
func New(cfg *config.Config, source Source, archiver snapshot.Archiver, logWriter RecordWriter, publisher Publisher, sink FrameSink) *Monitor {
	sessionID := uuid.NewString()
	return &Monitor{
		cfg:       cfg,
		source:    source,
		archiver:  archiver,
		logWriter: logWriter,
		publisher: publisher,
		sink:      sink,
		sessionID: sessionID,
		status: Status{
			SessionID:    sessionID,
			State:        StateDisplaying,
			CameraStatus: string(camlog.StatusOffline),
		},
		stopCh: make(chan struct{}),
	}
}

// Stop は監視ループに停止を要求する（終了キー用）
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// Status は現在の状態のスナップショットを返す
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run は監視ループを実行する
// コンテキストのキャンセルかStop呼び出しまでブロックする
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	m.status.StartedAt = time.Now()
	m.mu.Unlock()

	interval := m.cfg.Monitor.UpdateInterval
	log.Printf("監視を開始します (セッション: %s, 間隔: %v)", m.sessionID, interval)

	// 起動直後の最初の健全なフレームで1回目のサイクルを実行する
	lastUpdate := time.Now().Add(-interval)

	for {
		select {
		case <-ctx.Done():
			m.setState(StateStopped)
			return nil
		case <-m.stopCh:
			log.Println("終了キーを受信しました。監視を停止します。")
			m.setState(StateStopped)
			return nil
		default:
		}

		frame, err := m.source.Read(ctx)
		if err != nil {
			// コンテキストキャンセルによる中断
			m.setState(StateStopped)
			return nil
		}

		if frame == nil {
			// フレームが取得できないサイクルでは保存・ログ・公開を行わない
			m.markStalled()
			log.Println("[WARN] フレームを取得できませんでした。カメラとの接続を確認してください。")
			if !m.sleep(ctx, m.cfg.Monitor.StallSleep) {
				m.setState(StateStopped)
				return nil
			}
			continue
		}

		m.markOnline()

		// ビューワーへフレームを転送する
		if m.sink != nil {
			m.sink.Publish(frame)
		}

		// 間隔の判定は単調増加クロックに基づく
		if time.Since(lastUpdate) >= interval {
			m.runCycle(ctx, frame)
			lastUpdate = time.Now()
		}
	}
}

// runCycle は1サイクル分の保存・ログ・公開を逐次実行する
// どの手順の失敗も回復可能として扱い、次のサイクルへ続行する
func (m *Monitor) runCycle(ctx context.Context, frame []byte) {
	now := time.Now()
	log.Printf("--- 定期処理開始 (%s) ---", now.Format("15:04:05"))

	// 1. スナップショットを保存する
	m.setState(StateSnapshotting)
	result, err := m.archiver.Save(frame, now)
	if err != nil {
		// 保存できなかったサイクルではレコードも公開も作らない
		log.Printf("[SAVE ERROR] スナップショットの保存に失敗しました: %v", err)
		m.setState(StateDisplaying)
		return
	}
	log.Printf("[SAVE] %s を保存しました。", result.LogPath)

	// 2. CSVログを更新する
	m.setState(StateLogging)
	record := camlog.Record{
		Timestamp:    now,
		CameraAddr:   m.cfg.Camera.Address,
		Status:       camlog.StatusOnline,
		SnapshotFile: result.LogPath,
	}
	if err := m.logWriter.Write(record); err != nil {
		if errors.Is(err, camlog.ErrLocked) {
			log.Printf("[CSV ERROR] 書き込みが拒否されました。ログファイルがExcelなどで開かれていないか確認してください。")
		} else {
			log.Printf("[CSV ERROR] CSVファイルの書き込みに失敗しました: %v", err)
		}
	} else {
		log.Printf("[CSV] ログファイルを更新しました。")
	}

	// 3. Gitへ公開する
	if m.publisher != nil {
		m.setState(StatePublishing)
		pubResult, err := m.publisher.Publish(ctx, now)
		switch {
		case err != nil && errors.Is(err, publish.ErrGitMissing):
			log.Printf("[GIT ERROR] gitコマンドが見つかりません。GitがインストールされPATHが通っているか確認してください。")
		case err != nil:
			log.Printf("[GIT ERROR] 公開に失敗しました: %v", err)
		case pubResult.NothingToCommit:
			log.Println("[GIT] 変更がなかったため、コミットはスキップされました。")
		default:
			log.Println("[GIT] Push 成功！")
		}
	}

	m.mu.Lock()
	m.status.CycleCount++
	m.status.LastCycle = now
	m.status.LastSnapshot = result.LogPath
	m.mu.Unlock()

	m.setState(StateDisplaying)
	log.Println("--- 定期処理完了 ---")
}

// sleep は停止要求に応答しながら待機する
// 続行してよい場合はtrueを返す
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-m.stopCh:
		return false
	}
}

// setState は状態を更新する
func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.status.State = s
	m.mu.Unlock()
}

// markStalled はフレーム取得失敗を記録する
func (m *Monitor) markStalled() {
	m.mu.Lock()
	m.status.State = StateStalled
	m.status.CameraStatus = string(camlog.StatusOffline)
	m.status.StallCount++
	m.mu.Unlock()
}

// markOnline はカメラが健全であることを記録する
func (m *Monitor) markOnline() {
	m.mu.Lock()
	m.status.State = StateDisplaying
	m.status.CameraStatus = string(camlog.StatusOnline)
	m.mu.Unlock()
}
