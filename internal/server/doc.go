// Package server は、監視映像のHTTPビューワーを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// ライブ映像のストリーミング配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - MJPEGストリームのライブ配信
//   - 最新フレームと監視状態の提供
//
// 仕様:
//   - ルーティングとハンドラはgin-gonic/ginを使用
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時視聴をサポート
package server
