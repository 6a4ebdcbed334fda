// Package camera ネットワークカメラからの映像取得を担う
//
// # 責務
// - HTTP/RTSPストリームへの接続とフレーム取得
// - カメラへの解像度設定リクエストの送信
// - MJPEGバイトストリームからのJPEGフレーム切り出し
//
// # 仕様
// - Source: フレーム取得の統一インターフェース
// - StreamSource: ffmpeg経由でのストリームキャプチャ実装
// - 接続失敗は致命的エラー、フレーム取得失敗は一時的エラーとして扱う
//
// # 前提要件
//   - ffmpeg: ストリームのデコードとMJPEG変換に使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//     Red Hat/Fedora: sudo dnf install ffmpeg
package camera
