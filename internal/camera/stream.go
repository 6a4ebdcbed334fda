package camera

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"sync"
	"time"
)

// jpegSOI/jpegEOI はJPEGの開始・終了マーカー
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// StreamSource はffmpeg経由でネットワークカメラのストリームを取得するSource実装
type StreamSource struct {
	address   string
	transport string
	url       string

	openTimeout  time.Duration
	frameTimeout time.Duration

	// ffmpegプロセス制御用
	cmd    *exec.Cmd
	cancel context.CancelFunc

	frameChan chan []byte
	errorChan chan error

	// 制御リクエスト用
	controlClient *http.Client

	mu     sync.Mutex
	opened bool
}

// Option はStreamSourceの生成オプション
type Option func(*StreamSource)

// WithOpenTimeout は接続タイムアウトを設定する
func WithOpenTimeout(d time.Duration) Option {
	return func(s *StreamSource) { s.openTimeout = d }
}

// WithFrameTimeout は1フレーム待ちタイムアウトを設定する
func WithFrameTimeout(d time.Duration) Option {
	return func(s *StreamSource) { s.frameTimeout = d }
}

// WithFrameBuffer はフレームチャンネルのバッファサイズを設定する
func WithFrameBuffer(n int) Option {
	return func(s *StreamSource) { s.frameChan = make(chan []byte, n) }
}

// NewStreamSource は新しいStreamSourceを作成する
// サポートされていないストリーム形式の場合はエラーを返す（致命的）
func NewStreamSource(address, transport string, opts ...Option) (*StreamSource, error) {
	url, err := StreamURL(address, transport)
	if err != nil {
		return nil, err
	}

	s := &StreamSource{
		address:       address,
		transport:     transport,
		url:           url,
		openTimeout:   15 * time.Second,
		frameTimeout:  5 * time.Second,
		frameChan:     make(chan []byte, 10),
		errorChan:     make(chan error, 5),
		controlClient: defaultControlClient,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// URL は接続先URLを返す
func (s *StreamSource) URL() string {
	return s.url
}

// Open はffmpegを起動してストリームへの接続を確立する
// 最初のフレームが届くまで待ち、届かなければエラーを返す（致命的）
func (s *StreamSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil // 既に接続済み
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// ffmpegでストリームをMJPEGに変換しながらパイプ出力する
	args := []string{}
	if s.transport == "rtsp" {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", s.url,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
	cmd := exec.CommandContext(streamCtx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}
	s.cmd = cmd

	// stderrを別ゴルーチンで読み捨てる（パイプ詰まり防止）
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := stderr.Read(buf); err != nil {
				return
			}
		}
	}()

	// フレーム切り出しゴルーチンを開始
	go func() {
		defer func() {
			_ = cmd.Wait() // コンテキストキャンセル時のエラーは無視
		}()

		buffer := make([]byte, 1024*1024) // 1MBバッファ
		scanner := newFrameScanner()

		for {
			select {
			case <-streamCtx.Done():
				return
			default:
				n, err := stdout.Read(buffer)
				if err != nil {
					if err.Error() != "EOF" {
						select {
						case s.errorChan <- fmt.Errorf("フレーム読み取りエラー: %w", err):
						default:
						}
					}
					return
				}

				for _, frame := range scanner.Feed(buffer[:n]) {
					// チャンネルがフルの場合は古いフレームを破棄
					select {
					case s.frameChan <- frame:
					default:
						select {
						case <-s.frameChan:
						default:
						}
						select {
						case s.frameChan <- frame:
						case <-streamCtx.Done():
							return
						}
					}
				}
			}
		}
	}()

	// 最初のフレームが届くまで待つ
	select {
	case frame := <-s.frameChan:
		// 取り出したフレームは戻せないので次のReadのために詰め直す
		select {
		case s.frameChan <- frame:
		default:
		}
	case err := <-s.errorChan:
		cancel()
		return fmt.Errorf("ストリームへの接続に失敗 (%s): %w", s.url, err)
	case <-time.After(s.openTimeout):
		cancel()
		return fmt.Errorf("ストリームへの接続がタイムアウトしました (%s)", s.url)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}

	s.opened = true
	log.Printf("カメラストリームに接続しました: %s", s.url)
	return nil
}

// Read は次のフレームを取得する
// タイムアウトするか読み取りエラーが起きた場合は (nil, nil) を返す（一時的な障害）
func (s *StreamSource) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.frameChan:
		return frame, nil
	case err := <-s.errorChan:
		log.Printf("フレーム取得エラー: %v", err)
		return nil, nil
	case <-time.After(s.frameTimeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetResolution はカメラに解像度設定リクエストを送信する
func (s *StreamSource) SetResolution(ctx context.Context, index int) error {
	return requestResolution(ctx, s.controlClient, s.address, index)
}

// Close はffmpegプロセスを停止してストリームを閉じる
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.opened = false
	return nil
}

// frameScanner はMJPEGバイトストリームから完全なJPEGフレームを切り出す
type frameScanner struct {
	buf bytes.Buffer
}

// newFrameScanner は新しいframeScannerを作成する
func newFrameScanner() *frameScanner {
	return &frameScanner{}
}

// Feed はバイト列を追加し、切り出せた完全なJPEGフレームをすべて返す
func (fs *frameScanner) Feed(p []byte) [][]byte {
	fs.buf.Write(p)

	var frames [][]byte
	data := fs.buf.Bytes()

	for {
		// JPEGの開始マーカー（FF D8）を探す
		startIdx := bytes.Index(data, jpegSOI)
		if startIdx == -1 {
			break
		}

		// JPEGの終了マーカー（FF D9）を探す
		endIdx := bytes.Index(data[startIdx+2:], jpegEOI)
		if endIdx == -1 {
			// 完全なフレームがまだない
			if startIdx > 0 {
				// マーカー前の不要なデータを削除
				fs.buf.Reset()
				fs.buf.Write(data[startIdx:])
			}
			break
		}

		// 完全なJPEGフレームを抽出（マーカーのサイズを含める）
		endIdx += startIdx + 2 + 2
		frame := make([]byte, endIdx-startIdx)
		copy(frame, data[startIdx:endIdx])
		frames = append(frames, frame)

		// 処理済みデータを削除
		remaining := data[endIdx:]
		fs.buf.Reset()
		if len(remaining) > 0 {
			fs.buf.Write(remaining)
			data = fs.buf.Bytes()
		} else {
			break
		}
	}

	return frames
}
