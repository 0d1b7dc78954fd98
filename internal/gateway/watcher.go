package gateway

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchConfig は設定ファイルを監視し、変更のたびにservicesテーブルを
// 再読み込みしてレジストリへ反映する。ctxのキャンセルで監視を終了する。
//
// エディタやKubernetesのConfigMap更新はファイルの置き換え（rename+create）で
// 行われるため、ファイル自体ではなく親ディレクトリを監視する。
// 再読み込みの失敗はログに記録するだけで、直前の登録内容を維持する。
func WatchConfig(ctx context.Context, path string, registry *ServiceRegistry, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ファイル監視の初期化に失敗: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("設定ディレクトリの監視登録に失敗: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reloadServices(path, registry, logger)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("設定ファイル監視でエラーが発生",
					zap.Error(err),
				)
			}
		}
	}()

	return nil
}

// reloadServices は設定ファイルからservicesテーブルを読み直し、
// レジストリへ一括反映する。
func reloadServices(path string, registry *ServiceRegistry, logger *zap.Logger) {
	cfg, err := LoadConfig(path)
	if err != nil {
		logger.Warn("設定ファイルの再読み込みに失敗。直前の登録内容を維持します",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}

	registry.Apply(cfg.Services)
	logger.Info("サービスレジストリを更新しました",
		zap.String("path", path),
		zap.Int("services", len(cfg.Services)),
	)
}
