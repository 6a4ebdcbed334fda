package camlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrLocked はログファイルが他のプロセスに占有されていることを表す
// 呼び出し側はこのサイクルのログ書き込みをスキップして続行する
var ErrLocked = errors.New("ログファイルが他のプロセスに使用されています")

// Writer はカメラ状態ログのCSVファイルへの書き込みを担う
type Writer struct {
	path  string
	order Order
}

// Order はログの並び順を表す
type Order string

const (
	OrderAppend  Order = "append"  // 末尾に追記（時系列昇順）
	OrderPrepend Order = "prepend" // 先頭に挿入（時系列降順）
)

// NewWriter は新しいWriterを作成する
func NewWriter(path string, order Order) *Writer {
	if order == "" {
		order = OrderAppend
	}
	return &Writer{path: path, order: order}
}

// Path はログファイルのパスを返す
func (w *Writer) Path() string {
	return w.path
}

// Write はレコードを1件書き込む
// ファイルが存在しない場合はヘッダー付きで新規作成する
func (w *Writer) Write(record Record) error {
	switch w.order {
	case OrderPrepend:
		return w.prepend(record)
	default:
		return w.append(record)
	}
}

// append はレコードを末尾に追記する
func (w *Writer) append(record Record) error {
	_, statErr := os.Stat(w.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return classifyOpenError(err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if isNew {
		if err := cw.Write(CSVHeader()); err != nil {
			return fmt.Errorf("ヘッダーの書き込みに失敗: %w", err)
		}
	}
	if err := cw.Write(record.CSVRow()); err != nil {
		return fmt.Errorf("レコードの書き込みに失敗: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("ログの書き込みに失敗: %w", err)
	}

	return nil
}

// prepend は既存ファイル全体を読み込み、新しいレコードを先頭に置いて書き直す
func (w *Writer) prepend(record Record) error {
	// 既存レコードを読み込む（ファイルがなければ空）
	var existing [][]string
	if f, err := os.Open(w.path); err == nil {
		rows, readErr := csv.NewReader(f).ReadAll()
		f.Close()
		if readErr != nil {
			return fmt.Errorf("既存ログの読み込みに失敗: %w", readErr)
		}
		// ヘッダー行を除いたレコードを保持する
		if len(rows) > 0 {
			existing = rows[1:]
		}
	} else if !os.IsNotExist(err) {
		return classifyOpenError(err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return classifyOpenError(err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(CSVHeader()); err != nil {
		return fmt.Errorf("ヘッダーの書き込みに失敗: %w", err)
	}
	if err := cw.Write(record.CSVRow()); err != nil {
		return fmt.Errorf("レコードの書き込みに失敗: %w", err)
	}
	for _, row := range existing {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("既存レコードの書き戻しに失敗: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("ログの書き込みに失敗: %w", err)
	}

	return nil
}

// classifyOpenError はファイルオープンの失敗を分類する
// 権限拒否や占有はExcelなどでファイルが開かれている場合に起きる回復可能なエラー
func classifyOpenError(err error) error {
	if os.IsPermission(err) || errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EWOULDBLOCK) {
		return fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return fmt.Errorf("ログファイルのオープンに失敗: %w", err)
}
