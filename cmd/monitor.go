// Package main はMihari監視コマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"mihari/internal/camera"
	"mihari/internal/camlog"
	"mihari/internal/config"
	"mihari/internal/monitor"
	"mihari/internal/publish"
	"mihari/internal/server"
	"mihari/internal/snapshot"
)

func main() {
	// コマンドラインオプション
	var (
		address   = flag.String("address", "", "カメラのIPアドレス (デフォルト: 設定ファイルに従う)")
		transport = flag.String("transport", "", "ストリーム形式 http/rtsp (デフォルト: 設定ファイルに従う)")
		host      = flag.String("host", "", "ビューワーのホスト (デフォルト: 0.0.0.0)")
		port      = flag.Int("port", 0, "ビューワーのポート (デフォルト: 8080)")
		interval  = flag.Int("interval", 0, "実行間隔（秒） (デフォルト: 10)")
		noGit     = flag.Bool("no-git", false, "Git公開を無効化")
		help      = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Mihari")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  monitor [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *address != "" {
		cfg.Camera.Address = *address
	}
	if *transport != "" {
		cfg.Camera.Transport = *transport
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *interval > 0 {
		cfg.Monitor.UpdateInterval = time.Duration(*interval) * time.Second
	}
	if *noGit {
		cfg.Git.Enabled = false
	}

	// 上書き後の設定を再検証
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定の検証に失敗しました: %v", err)
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
		log.Fatalf("カメラ(%s)に接続できませんでした: %v", cfg.Camera.Address, err)
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
	mon.ListenExitKey(os.Stdin)

	// 監視ループを別ゴルーチンで実行
	go func() {
		defer cancel()
		if err := mon.Run(ctx); err != nil {
			log.Printf("監視ループでエラーが発生しました: %v", err)
		}
	}()

	// ビューワーサーバーを起動
	srv := server.New(cfg, hub, mon)
	log.Printf("Mihari ビューワーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}

	mon.Stop()
	log.Println("終了します。")
}
