package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/browser"

	"github.com/Dexter-KBD/trackball-layers/internal/api"
	"github.com/Dexter-KBD/trackball-layers/internal/config"
	"github.com/Dexter-KBD/trackball-layers/internal/features"
)

// RunCmd はサービスをフォアグラウンドで実行する
type RunCmd struct {
	Watch bool `help:"設定ファイルの変更を監視して反映します" default:"true" negatable:""`
}

// Run はシグナルを受け取るまでサービスを実行する
func (c *RunCmd) Run(g *Globals, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, path := g.loadConfig(logger)
	service := api.NewLayerService(cfg, logger, api.LinuxDevices())

	if c.Watch && path != "" {
		go func() {
			if err := config.Watch(ctx, path, logger, service.UpdateConfig); err != nil {
				logger.Warn("設定ファイルを監視できません", "err", err)
			}
		}()
	}

	logger.Info("CLIモードで起動します")
	if err := service.Run(ctx); err != nil {
		return fmt.Errorf("レイヤーサービスの実行に失敗しました: %w", err)
	}
	logger.Info("シャットダウンします")
	return nil
}

// ServeCmd はAPIサーバーを起動する
type ServeCmd struct {
	Port  int  `help:"APIサーバーのポート番号" default:"8080"`
	Start bool `help:"起動時にサービスも開始します"`
	Open  bool `help:"ブラウザで状態表示を開きます"`
}

// Run はシグナルを受け取るまでAPIサーバーを実行する
func (c *ServeCmd) Run(g *Globals, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, path := g.loadConfig(logger)
	service := api.NewLayerService(cfg, logger, api.LinuxDevices())
	server := api.NewServer(cfg, path, c.Port, service, logger)

	if c.Start {
		if err := service.Start(); err != nil {
			logger.Error("サービスの起動に失敗しました", "err", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	if c.Open {
		url := server.URL() + "/api/state"
		if err := browser.OpenURL(url); err != nil {
			logger.Warn("ブラウザを開けませんでした", "url", url, "err", err)
		}
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("APIサーバーの停止に失敗しました", "err", err)
	}
	if err := service.Stop(); err != nil && !errors.Is(err, api.ErrNotRunning) {
		logger.Warn("サービスの停止に失敗しました", "err", err)
	}
	if serveErr != nil {
		return fmt.Errorf("APIサーバーの起動に失敗しました: %w", serveErr)
	}
	return nil
}

// DevicesCmd は入力デバイスを一覧表示する
type DevicesCmd struct {
	Dir   string `help:"デバイスを探すディレクトリ" default:"/dev/input/by-id"`
	Watch bool   `help:"接続・切断を監視し続けます"`
}

// Run はデバイス一覧を表示する
func (c *DevicesCmd) Run(g *Globals, logger *slog.Logger, out io.Writer) error {
	cfg, _ := g.loadConfig(logger)

	devices, err := features.ScanDir(c.Dir)
	if err != nil {
		return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	printDevices(out, devices, cfg.DevicePrefs)

	if !c.Watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := features.NewDeviceMonitor(c.Dir, logger)
	monitor.RegisterCallback(func(ev features.DeviceEvent) {
		mark := "+"
		if ev.Type == features.DeviceRemoved {
			mark = "-"
		}
		fmt.Fprintf(out, "%s %-8s %s -> %s\n", mark, ev.Device.Type, ev.Device.Name, ev.Device.Path)
		if tb, err := features.SelectTrackball(monitor.Devices(), cfg.DevicePrefs.PreferredMouseDevice); err == nil {
			fmt.Fprintf(out, "  trackball: %s\n", tb.Name)
		}
	})
	return monitor.Run(ctx)
}

// printDevices はデバイス一覧と、サービスが選ぶデバイスを表示する
func printDevices(w io.Writer, devices []features.Device, prefs config.DevicePrefsConfig) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "デバイスが見つかりませんでした")
		return
	}

	trackball, tbErr := features.SelectTrackball(devices, prefs.PreferredMouseDevice)
	keyboard, kbOK := features.SelectKeyboard(devices, prefs.PreferredKeyboardDevice)

	for _, d := range devices {
		mark := " "
		if (tbErr == nil && d == trackball) || (kbOK && d == keyboard) {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-8s %s -> %s\n", mark, d.Type, d.Name, d.Path)
	}
}

// ConfigCmd は設定ファイル関連のサブコマンド
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"デフォルト設定ファイルを作成します"`
	Show ConfigShowCmd `cmd:"" help:"現在の設定を表示します"`
}

// ConfigInitCmd はデフォルト設定を書き出す
type ConfigInitCmd struct {
	Force bool `help:"既存のファイルを上書きします"`
}

// Run はデフォルト設定を書き出す
func (c *ConfigInitCmd) Run(g *Globals, out io.Writer) error {
	path, err := g.configPath()
	if err != nil {
		return err
	}
	if !c.Force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s は既に存在します。上書きするには --force を指定してください", path)
		}
	}
	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		return fmt.Errorf("設定の保存に失敗しました: %w", err)
	}
	fmt.Fprintln(out, path)
	return nil
}

// ConfigShowCmd は読み込んだ設定を TOML で表示する
type ConfigShowCmd struct{}

// Run は設定を表示する
func (c *ConfigShowCmd) Run(g *Globals, out io.Writer) error {
	path, err := g.configPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	return toml.NewEncoder(out).Encode(cfg)
}
