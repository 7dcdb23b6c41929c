package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce はエディタの保存で連続するイベントをまとめる時間
const watchDebounce = 200 * time.Millisecond

// Watch は ctx が終了するまで設定ファイルを監視し、読み込めた設定を fn に渡す
// 読み込みに失敗した場合はログに残して以前の設定を使い続ける
func Watch(ctx context.Context, configPath string, logger *slog.Logger, fn func(*Config)) error {
	configPath = filepath.Clean(configPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// 置き換え保存に対応するためディレクトリごと監視する
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(configPath), err)
	}
	logger.Info("設定ファイルの監視を開始します", "path", configPath)

	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			cfg, err := LoadConfig(configPath)
			if err != nil {
				logger.Warn("設定ファイルの再読み込みに失敗しました", "path", configPath, "err", err)
				continue
			}
			logger.Info("設定ファイルを再読み込みしました", "path", configPath)
			fn(cfg)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("設定ファイル監視エラー", "err", err)
		}
	}
}
