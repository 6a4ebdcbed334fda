package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"mihari/internal/camera"
	"mihari/internal/camlog"
	"mihari/internal/config"
	"mihari/internal/monitor"
	"mihari/internal/publish"
	"mihari/internal/server"
	"mihari/internal/snapshot"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コンテキストを作成
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// カメラストリームを開く（接続失敗は致命的）
	source, err := camera.NewStreamSource(
		cfg.Camera.Address,
		cfg.Camera.Transport,
		camera.WithOpenTimeout(cfg.Camera.OpenTimeout),
		camera.WithFrameTimeout(cfg.Camera.FrameTimeout),
		camera.WithFrameBuffer(cfg.Camera.FrameChanSize),
	)
	if err != nil {
		log.Fatalf("カメラソースの作成に失敗しました: %v", err)
	}
	if err := source.Open(ctx); err != nil {
		log.Fatalf("カメラ(%s)に接続できませんでした。IPアドレスやネットワークを確認してください: %v", cfg.Camera.Address, err)
	}
	defer source.Close()

	// 解像度設定リクエストを送信（失敗しても続行）
	if err := source.SetResolution(ctx, cfg.Camera.FramesizeIdx); err != nil {
		log.Printf("SET_RESOLUTION: 解像度の設定に失敗しました - %v", err)
	}

	// アーカイバとログライターを作成
	archiver, err := snapshot.New(cfg.Archive)
	if err != nil {
		log.Fatalf("アーカイバの作成に失敗しました: %v", err)
	}
	logWriter := camlog.NewWriter(
		filepath.Join(cfg.Archive.BaseDir, cfg.Log.Filename),
		camlog.Order(cfg.Log.Order),
	)

	// Git公開を作成（無効化されている場合はnil）
	var publisher monitor.Publisher
	if cfg.Git.Enabled {
		publisher = publish.NewGitPublisher(cfg.Git.WorkDir, cfg.Git.Remote, cfg.Git.Branch)
	}

	// フレーム配信ハブと監視ループを作成
	hub := server.NewHub()
	mon := monitor.New(cfg, source, archiver, logWriter, publisher, hub)

	// 終了キー（ESC / q）の監視を開始
	mon.ListenExitKey(os.Stdin)

	log.Println("カメラ映像を表示します。ESCキーまたはqキーで終了します。")
	log.Printf("%v ごとにスナップショットとログをGitへプッシュします。", cfg.Monitor.UpdateInterval)

	// 監視ループを別ゴルーチンで実行
	go func() {
		defer cancel()
		if err := mon.Run(ctx); err != nil {
			log.Printf("監視ループでエラーが発生しました: %v", err)
		}
	}()

	// ビューワーサーバーを起動（シグナルかコンテキストで停止）
	srv := server.New(cfg, hub, mon)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}

	// サーバー停止後に監視ループも止める
	mon.Stop()
	log.Println("終了します。")
}
