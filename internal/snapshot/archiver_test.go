package snapshot

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mihari/internal/config"
)

// testFrame はデコード可能なテスト用JPEGフレームを作成する
func testFrame(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("テスト用フレームの作成に失敗しました: %v", err)
	}
	return buf.Bytes()
}

// TestFlatArchiverSave はフラット方式の保存をテストする
func TestFlatArchiverSave(t *testing.T) {
	dir := t.TempDir()
	archiver := &FlatArchiver{baseDir: dir, prefix: "snapshot"}
	frame := testFrame(t)

	now := time.Date(2026, 8, 30, 12, 34, 56, 0, time.Local)
	result, err := archiver.Save(frame, now)
	if err != nil {
		t.Fatalf("保存に失敗しました: %v", err)
	}

	// ユニーク名で保存されている
	wantName := "snapshot_20260830_123456.jpg"
	if result.LogPath != wantName {
		t.Errorf("予期しないログパス: got %q, want %q", result.LogPath, wantName)
	}
	if result.Path != filepath.Join(dir, wantName) {
		t.Errorf("予期しない保存先: got %q", result.Path)
	}
	if !result.Verified {
		t.Error("フラット方式の保存結果が未検証扱いになっています")
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("保存されたファイルの読み込みに失敗しました: %v", err)
	}
	if !bytes.Equal(data, frame) {
		t.Error("保存された内容がフレームと一致しません")
	}
}

// TestFlatArchiverUniqueNames は時刻ごとに別ファイルが作られることをテストする
func TestFlatArchiverUniqueNames(t *testing.T) {
	dir := t.TempDir()
	archiver := &FlatArchiver{baseDir: dir, prefix: "snapshot"}
	frame := testFrame(t)

	t1 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	t2 := t1.Add(10 * time.Second)

	r1, err := archiver.Save(frame, t1)
	if err != nil {
		t.Fatalf("1回目の保存に失敗しました: %v", err)
	}
	r2, err := archiver.Save(frame, t2)
	if err != nil {
		t.Fatalf("2回目の保存に失敗しました: %v", err)
	}

	if r1.Path == r2.Path {
		t.Errorf("保存先が重複しています: %q", r1.Path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ディレクトリの読み取りに失敗しました: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("予期しないファイル数: got %d, want 2", len(entries))
	}
}

// TestDatedArchiverSave は日付別方式の保存をテストする
func TestDatedArchiverSave(t *testing.T) {
	dir := t.TempDir()
	archiver := &DatedArchiver{
		baseDir:    dir,
		prefix:     "snapshot",
		latestFile: "latest.jpg",
		datedDir:   "log",
	}
	frame := testFrame(t)

	now := time.Date(2026, 8, 30, 12, 34, 56, 0, time.Local)
	result, err := archiver.Save(frame, now)
	if err != nil {
		t.Fatalf("保存に失敗しました: %v", err)
	}

	// 日付別ディレクトリ配下に保存されている
	wantArchive := filepath.Join(dir, "log", "2026", "08", "snapshot_20260830_123456.jpg")
	if result.Path != wantArchive {
		t.Errorf("予期しない保存先: got %q, want %q", result.Path, wantArchive)
	}
	if _, err := os.Stat(wantArchive); err != nil {
		t.Errorf("アーカイブファイルが存在しません: %v", err)
	}

	// ログパスはスラッシュ区切りの相対パス
	if want := "log/2026/08/snapshot_20260830_123456.jpg"; result.LogPath != want {
		t.Errorf("予期しないログパス: got %q, want %q", result.LogPath, want)
	}

	// 最新ファイルが書き込まれ、検証に成功している
	latest := filepath.Join(dir, "latest.jpg")
	if _, err := os.Stat(latest); err != nil {
		t.Errorf("最新ファイルが存在しません: %v", err)
	}
	if !result.Verified {
		t.Error("正常なJPEGの検証に失敗しています")
	}
}

// TestDatedArchiverLatestOverwrite は最新ファイルの上書きをテストする
func TestDatedArchiverLatestOverwrite(t *testing.T) {
	dir := t.TempDir()
	archiver := &DatedArchiver{
		baseDir:    dir,
		prefix:     "snapshot",
		latestFile: "latest.jpg",
		datedDir:   "log",
	}
	frame := testFrame(t)

	t1 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	t2 := t1.Add(10 * time.Second)

	if _, err := archiver.Save(frame, t1); err != nil {
		t.Fatalf("1回目の保存に失敗しました: %v", err)
	}

	// 2回目は内容を変えて保存し、最新ファイルが置き換わることを確認する
	frame2 := testFrame(t)
	frame2 = append(frame2[:len(frame2):len(frame2)], 0x00) // 末尾に余分なバイトを足して区別する
	if _, err := archiver.Save(frame2, t2); err != nil {
		t.Fatalf("2回目の保存に失敗しました: %v", err)
	}

	latest, err := os.ReadFile(filepath.Join(dir, "latest.jpg"))
	if err != nil {
		t.Fatalf("最新ファイルの読み込みに失敗しました: %v", err)
	}
	if !bytes.Equal(latest, frame2) {
		t.Error("最新ファイルが最後のフレームに置き換わっていません")
	}
}

// TestDatedArchiverVerifyFailure は壊れたフレームの検証失敗をテストする
func TestDatedArchiverVerifyFailure(t *testing.T) {
	dir := t.TempDir()
	archiver := &DatedArchiver{
		baseDir:    dir,
		prefix:     "snapshot",
		latestFile: "latest.jpg",
		datedDir:   "log",
	}

	// JPEGとしてデコードできないデータ
	garbage := []byte{0x00, 0x01, 0x02, 0x03}

	now := time.Date(2026, 8, 30, 12, 34, 56, 0, time.Local)
	result, err := archiver.Save(garbage, now)
	if err != nil {
		t.Fatalf("検証失敗が保存エラーとして扱われました: %v", err)
	}
	if result.Verified {
		t.Error("壊れたフレームの検証が成功扱いになっています")
	}

	// 保存自体は行われている
	if _, err := os.Stat(result.Path); err != nil {
		t.Errorf("アーカイブファイルが存在しません: %v", err)
	}
}

// TestNewArchiver は設定からのアーカイバ作成をテストする
func TestNewArchiver(t *testing.T) {
	testCases := []struct {
		name      string
		policy    config.ArchivePolicy
		expectErr bool
	}{
		{"フラット方式", config.PolicyFlat, false},
		{"日付別方式", config.PolicyDated, false},
		{"無効な方式", "weekly", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(config.ArchiveConfig{
				Policy:     tc.policy,
				BaseDir:    t.TempDir(),
				Prefix:     "snapshot",
				LatestFile: "latest.jpg",
				DatedDir:   "log",
			})
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}
