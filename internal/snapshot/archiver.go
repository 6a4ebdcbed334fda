// Package snapshot はスナップショット画像の保存方式を担う
package snapshot

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"time"

	"mihari/internal/config"
)

// タイムスタンプ付きファイル名に使うフォーマット（秒精度）
const timestampLayout = "20060102_150405"

// Result は1回の保存結果を表す
type Result struct {
	Path     string // 実際に書き込んだファイルのパス
	LogPath  string // ログに記録するパス（ベースディレクトリ相対・スラッシュ区切り）
	Verified bool   // 読み戻し検証に成功したか（検証しない方式では常にtrue）
}

// Archiver はスナップショット保存の統一インターフェース
type Archiver interface {
	// Save はフレームを保存し、保存結果を返す
	Save(frame []byte, now time.Time) (Result, error)
}

// New は設定に応じたArchiverを作成する
func New(cfg config.ArchiveConfig) (Archiver, error) {
	switch cfg.Policy {
	case config.PolicyFlat:
		return &FlatArchiver{baseDir: cfg.BaseDir, prefix: cfg.Prefix}, nil
	case config.PolicyDated:
		return &DatedArchiver{
			baseDir:    cfg.BaseDir,
			prefix:     cfg.Prefix,
			latestFile: cfg.LatestFile,
			datedDir:   cfg.DatedDir,
		}, nil
	default:
		return nil, fmt.Errorf("無効な保存方式: %q", cfg.Policy)
	}
}

// FlatArchiver はベースディレクトリ直下にユニーク名で保存する
// 上書きは発生せず、保存のたびに新しいファイルが増える
type FlatArchiver struct {
	baseDir string
	prefix  string
}

// Save はフレームをタイムスタンプ付きのユニーク名で保存する
func (a *FlatArchiver) Save(frame []byte, now time.Time) (Result, error) {
	filename := fmt.Sprintf("%s_%s.jpg", a.prefix, now.Format(timestampLayout))
	path := filepath.Join(a.baseDir, filename)

	if err := os.WriteFile(path, frame, 0644); err != nil {
		return Result{}, fmt.Errorf("スナップショットの保存に失敗 (%s): %w", path, err)
	}

	return Result{Path: path, LogPath: filename, Verified: true}, nil
}

// DatedArchiver は日付別ディレクトリへの保存と最新ファイルの上書きを行う
// 保存のたびに2回書き込む: 固定名の最新ファイルと log/<年>/<月>/ 配下のアーカイブ
type DatedArchiver struct {
	baseDir    string
	prefix     string
	latestFile string
	datedDir   string
}

// Save はフレームを最新ファイルと日付別アーカイブの両方に保存する
// 最新ファイルは読み戻してJPEGとしてデコードできるか検証する
// 検証失敗は表示上の問題でしかないため、保存自体は成功として扱う
func (a *DatedArchiver) Save(frame []byte, now time.Time) (Result, error) {
	// 日付別ディレクトリを必要に応じて作成する
	dir := filepath.Join(a.baseDir, a.datedDir, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Result{}, fmt.Errorf("アーカイブディレクトリの作成に失敗 (%s): %w", dir, err)
	}

	// 日付別アーカイブへ保存
	filename := fmt.Sprintf("%s_%s.jpg", a.prefix, now.Format(timestampLayout))
	archivePath := filepath.Join(dir, filename)
	if err := os.WriteFile(archivePath, frame, 0644); err != nil {
		return Result{}, fmt.Errorf("アーカイブの保存に失敗 (%s): %w", archivePath, err)
	}

	// 最新ファイルを上書き保存
	latestPath := filepath.Join(a.baseDir, a.latestFile)
	if err := os.WriteFile(latestPath, frame, 0644); err != nil {
		return Result{}, fmt.Errorf("最新スナップショットの保存に失敗 (%s): %w", latestPath, err)
	}

	// ログにはベースディレクトリ相対のスラッシュ区切りパスを記録する
	rel, err := filepath.Rel(a.baseDir, archivePath)
	if err != nil {
		rel = archivePath
	}

	result := Result{
		Path:     archivePath,
		LogPath:  filepath.ToSlash(rel),
		Verified: true,
	}

	// 最新ファイルを読み戻して検証する
	if err := verifyJPEG(latestPath); err != nil {
		log.Printf("スナップショットの検証に失敗 (%s): %v", latestPath, err)
		result.Verified = false
	}

	return result, nil
}

// verifyJPEG はファイルを読み戻してJPEGとしてデコードできるか確認する
func verifyJPEG(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("読み戻しに失敗: %w", err)
	}

	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}

	return nil
}
