// Package publish は作業ディレクトリのGitリポジトリへの自動公開を担う
//
// # 責務
// - 作業ディレクトリ内のすべての変更のステージング
// - タイムスタンプ付きメッセージでのコミット
// - 固定リモート・固定ブランチへのプッシュ
//
// # 仕様
// - gitコマンドを外部プロセスとして順次実行する
// - 「nothing to commit」は正常な空振りとして扱う
// - gitコマンドが見つからない場合も回復可能なエラーとして扱う
package publish

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrGitMissing はgitコマンドが見つからないことを表す
// 公開はできないが監視ループは続行できる
var ErrGitMissing = errors.New("gitコマンドが見つかりません")

// コミットメッセージのタイムスタンプに使うフォーマット
const commitTimeLayout = "2006-01-02 15:04:05"

// Result は1回の公開結果を表す
type Result struct {
	Committed       bool   // 新しいコミットが作成されたか
	NothingToCommit bool   // 変更がなくコミットがスキップされたか
	CommitMessage   string // 使用したコミットメッセージ
}

// GitPublisher はgitコマンド経由で変更を公開する
type GitPublisher struct {
	workDir string
	remote  string
	branch  string
}

// NewGitPublisher は新しいGitPublisherを作成する
func NewGitPublisher(workDir, remote, branch string) *GitPublisher {
	return &GitPublisher{
		workDir: workDir,
		remote:  remote,
		branch:  branch,
	}
}

// Publish は作業ディレクトリの変更をステージ・コミット・プッシュする
// 変更がない場合は何もせず成功として返す
func (p *GitPublisher) Publish(ctx context.Context, now time.Time) (Result, error) {
	message := fmt.Sprintf("Auto-update: %s", now.Format(commitTimeLayout))
	result := Result{CommitMessage: message}

	// 1. すべての変更をステージする
	if out, err := p.runGit(ctx, "add", "-A", "."); err != nil {
		return result, classifyGitError("add", out, err)
	}

	// 2. コミットする
	if out, err := p.runGit(ctx, "commit", "-m", message); err != nil {
		// 変更がない場合のコミット失敗は正常な空振り
		if isNothingToCommit(out) {
			result.NothingToCommit = true
			return result, nil
		}
		return result, classifyGitError("commit", out, err)
	}
	result.Committed = true

	// 3. プッシュする
	if out, err := p.runGit(ctx, "push", p.remote, p.branch); err != nil {
		return result, classifyGitError("push", out, err)
	}

	return result, nil
}

// runGit はgitサブコマンドを作業ディレクトリで実行し、出力を返す
func (p *GitPublisher) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.workDir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// classifyGitError はgitコマンドの失敗を分類する
func classifyGitError(op, out string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrGitMissing, err)
	}
	out = strings.TrimSpace(out)
	if out != "" {
		return fmt.Errorf("git %s に失敗: %w (出力: %s)", op, err, out)
	}
	return fmt.Errorf("git %s に失敗: %w", op, err)
}

// isNothingToCommit はコミット失敗の出力が「変更なし」を示すか判定する
func isNothingToCommit(out string) bool {
	return strings.Contains(out, "nothing to commit")
}
