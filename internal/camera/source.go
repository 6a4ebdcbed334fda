package camera

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Source はカメラ映像源の統一インターフェース
type Source interface {
	// Open はストリームへの接続を確立する
	// 接続に失敗した場合のエラーは致命的として扱う
	Open(ctx context.Context) error

	// Read は次のフレームを取得する
	// フレームが取得できなかった場合は (nil, nil) を返す（一時的な障害）
	Read(ctx context.Context) ([]byte, error)

	// Close はストリームを閉じる
	Close() error

	// SetResolution はカメラに解像度設定リクエストを送信する
	// 失敗してもエラーを返すだけで、呼び出し側は続行してよい
	SetResolution(ctx context.Context, index int) error
}

// StreamURL はカメラアドレスとストリーム形式から接続先URLを組み立てる
func StreamURL(address, transport string) (string, error) {
	switch transport {
	case "http":
		return fmt.Sprintf("http://%s", address), nil
	case "rtsp":
		return fmt.Sprintf("rtsp://%s:554/mjpeg/1", address), nil
	default:
		return "", fmt.Errorf("サポートされていないストリーム形式: %q", transport)
	}
}

// controlURL はカメラ制御リクエストのURLを組み立てる
func controlURL(address string, index int) string {
	return fmt.Sprintf("http://%s/control?var=framesize&val=%d", address, index)
}

// requestResolution はカメラへ解像度設定リクエストを送信する
func requestResolution(ctx context.Context, client *http.Client, address string, index int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, controlURL(address, index), nil)
	if err != nil {
		return fmt.Errorf("制御リクエストの作成に失敗: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("解像度設定リクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("解像度設定リクエストが拒否されました: %s", resp.Status)
	}

	return nil
}

// defaultControlClient はカメラ制御リクエスト用のHTTPクライアント
// カメラが応答しない場合に備えて短めのタイムアウトを設定する
var defaultControlClient = &http.Client{Timeout: 5 * time.Second}
