package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/Dexter-KBD/trackball-layers/internal/config"
)

// Globals は全コマンド共通のフラグ
type Globals struct {
	ConfigPath string `name:"config" help:"設定ファイルのパス (指定しない場合はデフォルトパスを使用)" type:"path" placeholder:"PATH"`
	LogLevel   string `help:"ログレベル" enum:"debug,info,warn,error" default:"info"`
}

// CLI はコマンドライン全体の定義
type CLI struct {
	Globals `embed:""`

	Run     RunCmd     `cmd:"" default:"1" help:"トラックボールのレイヤー変換を実行します"`
	Serve   ServeCmd   `cmd:"" help:"APIサーバーモードで起動します"`
	Devices DevicesCmd `cmd:"" help:"入力デバイスを一覧表示します"`
	Config  ConfigCmd  `cmd:"" help:"設定ファイルを操作します"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("trackball-layers"),
		kong.Description("トラックボールにレイヤーごとのスクロール・音量・タブ移動を追加します"),
		kong.UsageOnError(),
	)

	logger, err := newLogger(cli.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx.Bind(&cli.Globals)
	ctx.Bind(logger)
	ctx.BindTo(os.Stdout, (*io.Writer)(nil))

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

// newLogger は指定レベルのテキストロガーを作成する
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info", "":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// configPath は設定ファイルのパスを決定する
func (g *Globals) configPath() (string, error) {
	if g.ConfigPath != "" {
		return g.ConfigPath, nil
	}
	return config.DefaultConfigPath()
}

// loadConfig は設定ファイルを読み込む。失敗した場合はデフォルト設定を使う
func (g *Globals) loadConfig(logger *slog.Logger) (*config.Config, string) {
	path, err := g.configPath()
	if err != nil {
		logger.Warn("設定ファイルのパスを決定できません。デフォルト設定を使用します", "err", err)
		return config.DefaultConfig(), ""
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Warn("設定ファイルの読み込みに失敗しました。デフォルト設定を使用します", "path", path, "err", err)
		return cfg, path
	}
	logger.Info("設定ファイルを読み込みました", "path", path)
	return cfg, path
}
