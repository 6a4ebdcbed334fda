package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ArchivePolicy はスナップショットの保存方式を表す
type ArchivePolicy string

const (
	// PolicyFlat はベースディレクトリ直下にユニーク名で保存する方式
	PolicyFlat ArchivePolicy = "flat"
	// PolicyDated は日付別ディレクトリ + 最新ファイル上書きで保存する方式
	PolicyDated ArchivePolicy = "dated"
)

// LogOrder はCSVログの並び順を表す
type LogOrder string

const (
	OrderAppend  LogOrder = "append"  // 時系列昇順（末尾に追記）
	OrderPrepend LogOrder = "prepend" // 時系列降順（先頭に挿入）
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Camera  CameraConfig  `yaml:"camera"`
	Archive ArchiveConfig `yaml:"archive"`
	Log     LogConfig     `yaml:"log"`
	Git     GitConfig     `yaml:"git"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig はHTTPビューワーサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はネットワークカメラの設定
type CameraConfig struct {
	Address       string        `yaml:"address"`         // カメラのIPアドレス (例: 192.168.137.50)
	Transport     string        `yaml:"transport"`       // ストリーム形式 ("http" または "rtsp")
	FramesizeIdx  int           `yaml:"framesize_idx"`   // 解像度設定インデックス (カメラ側の framesize 値)
	OpenTimeout   time.Duration `yaml:"open_timeout"`    // ストリーム接続タイムアウト
	FrameTimeout  time.Duration `yaml:"frame_timeout"`   // 1フレーム待ちタイムアウト
	FrameChanSize int           `yaml:"frame_chan_size"` // フレームチャンネルのバッファサイズ
}

// ArchiveConfig はスナップショット保存の設定
type ArchiveConfig struct {
	Policy     ArchivePolicy `yaml:"policy"`      // 保存方式 ("flat" または "dated")
	BaseDir    string        `yaml:"base_dir"`    // 保存先ベースディレクトリ
	Prefix     string        `yaml:"prefix"`      // スナップショットファイル名の接頭辞
	LatestFile string        `yaml:"latest_file"` // 最新スナップショットのファイル名 (dated方式のみ)
	DatedDir   string        `yaml:"dated_dir"`   // 日付別アーカイブのサブディレクトリ名
}

// LogConfig はCSVステータスログの設定
type LogConfig struct {
	Filename string   `yaml:"filename"` // CSVファイル名
	Order    LogOrder `yaml:"order"`    // 並び順 ("append" または "prepend")
}

// GitConfig はGit公開の設定
type GitConfig struct {
	Enabled bool   `yaml:"enabled"`  // 公開の有効/無効
	Remote  string `yaml:"remote"`   // プッシュ先リモート名
	Branch  string `yaml:"branch"`   // プッシュ先ブランチ名
	WorkDir string `yaml:"work_dir"` // gitコマンドを実行する作業ディレクトリ
}

// MonitorConfig は監視ループの設定
type MonitorConfig struct {
	UpdateInterval time.Duration `yaml:"update_interval"` // スナップショット・ログ・公開の実行間隔
	StallSleep     time.Duration `yaml:"stall_sleep"`     // フレーム取得失敗時の待機時間
}

// fileConfig はYAML設定ファイルの形式
// 期間はtime.ParseDuration形式の文字列で指定する (例: "10s")
type fileConfig struct {
	Server struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	Camera struct {
		Address      string `yaml:"address"`
		Transport    string `yaml:"transport"`
		FramesizeIdx int    `yaml:"framesize_idx"`
		OpenTimeout  string `yaml:"open_timeout"`
		FrameTimeout string `yaml:"frame_timeout"`
	} `yaml:"camera"`
	Archive struct {
		Policy     string `yaml:"policy"`
		BaseDir    string `yaml:"base_dir"`
		Prefix     string `yaml:"prefix"`
		LatestFile string `yaml:"latest_file"`
		DatedDir   string `yaml:"dated_dir"`
	} `yaml:"archive"`
	Log struct {
		Filename string `yaml:"filename"`
		Order    string `yaml:"order"`
	} `yaml:"log"`
	Git struct {
		Enabled *bool  `yaml:"enabled"`
		Remote  string `yaml:"remote"`
		Branch  string `yaml:"branch"`
		WorkDir string `yaml:"work_dir"`
	} `yaml:"git"`
	Monitor struct {
		UpdateInterval string `yaml:"update_interval"`
		StallSleep     string `yaml:"stall_sleep"`
	} `yaml:"monitor"`
}

// Load は設定を読み込む
// デフォルト値 → YAMLファイル (存在すれば) → 環境変数 の順に上書きする
func Load() (*Config, error) {
	cfg := defaultConfig()

	// YAML設定ファイルを読み込む（存在しない場合はスキップ）
	path := getEnvOrDefault("MIHARI_CONFIG", "mihari.yaml")
	if data, err := os.ReadFile(path); err == nil {
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
		}
		if err := cfg.applyFile(&file); err != nil {
			return nil, fmt.Errorf("設定ファイルの適用に失敗 (%s): %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗 (%s): %w", path, err)
	}

	// 環境変数で上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Camera.Address = getEnvOrDefault("CAMERA_ADDRESS", cfg.Camera.Address)
	cfg.Camera.Transport = getEnvOrDefault("CAMERA_TRANSPORT", cfg.Camera.Transport)
	cfg.Git.Remote = getEnvOrDefault("GIT_REMOTE", cfg.Git.Remote)
	cfg.Git.Branch = getEnvOrDefault("GIT_BRANCH", cfg.Git.Branch)
	if v := getEnvAsIntOrDefault("UPDATE_INTERVAL", 0); v > 0 {
		cfg.Monitor.UpdateInterval = time.Duration(v) * time.Second
	}

	// ログの並び順が未指定なら保存方式から導出する
	// 日付別アーカイブは最新レコードを先頭に置く運用、フラットは追記運用
	if cfg.Log.Order == "" {
		if cfg.Archive.Policy == PolicyDated {
			cfg.Log.Order = OrderPrepend
		} else {
			cfg.Log.Order = OrderAppend
		}
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// defaultConfig はデフォルト設定を作成する
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Address:       "192.168.137.50",
			Transport:     "rtsp",
			FramesizeIdx:  8,
			OpenTimeout:   15 * time.Second,
			FrameTimeout:  5 * time.Second,
			FrameChanSize: 10,
		},
		Archive: ArchiveConfig{
			Policy:     PolicyFlat,
			BaseDir:    ".",
			Prefix:     "snapshot",
			LatestFile: "latest.jpg",
			DatedDir:   "log",
		},
		Log: LogConfig{
			Filename: "camera_log.csv",
		},
		Git: GitConfig{
			Enabled: true,
			Remote:  "origin",
			Branch:  "main",
			WorkDir: ".",
		},
		Monitor: MonitorConfig{
			UpdateInterval: 10 * time.Second,
			StallSleep:     1 * time.Second,
		},
	}
}

// applyFile は設定ファイルの値で設定を上書きする
// ファイルにない項目は既存の値を維持する
func (c *Config) applyFile(file *fileConfig) error {
	if file.Server.Host != "" {
		c.Server.Host = file.Server.Host
	}
	if file.Server.Port != 0 {
		c.Server.Port = file.Server.Port
	}
	if err := applyDuration(&c.Server.ReadTimeout, file.Server.ReadTimeout); err != nil {
		return err
	}
	if err := applyDuration(&c.Server.WriteTimeout, file.Server.WriteTimeout); err != nil {
		return err
	}

	if file.Camera.Address != "" {
		c.Camera.Address = file.Camera.Address
	}
	if file.Camera.Transport != "" {
		c.Camera.Transport = file.Camera.Transport
	}
	if file.Camera.FramesizeIdx != 0 {
		c.Camera.FramesizeIdx = file.Camera.FramesizeIdx
	}
	if err := applyDuration(&c.Camera.OpenTimeout, file.Camera.OpenTimeout); err != nil {
		return err
	}
	if err := applyDuration(&c.Camera.FrameTimeout, file.Camera.FrameTimeout); err != nil {
		return err
	}

	if file.Archive.Policy != "" {
		c.Archive.Policy = ArchivePolicy(file.Archive.Policy)
	}
	if file.Archive.BaseDir != "" {
		c.Archive.BaseDir = file.Archive.BaseDir
	}
	if file.Archive.Prefix != "" {
		c.Archive.Prefix = file.Archive.Prefix
	}
	if file.Archive.LatestFile != "" {
		c.Archive.LatestFile = file.Archive.LatestFile
	}
	if file.Archive.DatedDir != "" {
		c.Archive.DatedDir = file.Archive.DatedDir
	}

	if file.Log.Filename != "" {
		c.Log.Filename = file.Log.Filename
	}
	if file.Log.Order != "" {
		c.Log.Order = LogOrder(file.Log.Order)
	}

	if file.Git.Enabled != nil {
		c.Git.Enabled = *file.Git.Enabled
	}
	if file.Git.Remote != "" {
		c.Git.Remote = file.Git.Remote
	}
	if file.Git.Branch != "" {
		c.Git.Branch = file.Git.Branch
	}
	if file.Git.WorkDir != "" {
		c.Git.WorkDir = file.Git.WorkDir
	}

	if err := applyDuration(&c.Monitor.UpdateInterval, file.Monitor.UpdateInterval); err != nil {
		return err
	}
	if err := applyDuration(&c.Monitor.StallSleep, file.Monitor.StallSleep); err != nil {
		return err
	}

	return nil
}

// applyDuration は期間文字列を解析して設定値を上書きする
// 空文字列の場合は既存の値を維持する
func applyDuration(dst *time.Duration, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("無効な期間指定 %q: %w", value, err)
	}
	*dst = d
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	if c.Camera.Address == "" {
		return fmt.Errorf("カメラアドレスが設定されていません")
	}
	if c.Camera.Transport != "http" && c.Camera.Transport != "rtsp" {
		return fmt.Errorf("サポートされていないストリーム形式: %q", c.Camera.Transport)
	}

	// アーカイブ設定の検証
	switch c.Archive.Policy {
	case PolicyFlat, PolicyDated:
	default:
		return fmt.Errorf("無効な保存方式: %q", c.Archive.Policy)
	}
	if c.Archive.Prefix == "" {
		return fmt.Errorf("スナップショットの接頭辞が設定されていません")
	}

	// ログ設定の検証
	switch c.Log.Order {
	case OrderAppend, OrderPrepend, "":
	default:
		return fmt.Errorf("無効なログ並び順: %q", c.Log.Order)
	}

	// 監視設定の検証
	if c.Monitor.UpdateInterval <= 0 {
		return fmt.Errorf("無効な実行間隔: %v", c.Monitor.UpdateInterval)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
