package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dexter-KBD/trackball-layers/internal/config"
	"github.com/Dexter-KBD/trackball-layers/internal/features"
	"github.com/Dexter-KBD/trackball-layers/internal/firmware"
)

var (
	ErrAlreadyRunning = errors.New("service is already running")
	ErrNotRunning     = errors.New("service is not running")
)

// Devices はサービスが使うデバイスの生成方法
type Devices struct {
	Scan          func() ([]features.Device, error)
	OpenTrackball func(path string) (features.Trackball, error)
	OpenKeyboard  func(path string) (features.Keyboard, error)
	CreatePointer func() (features.Pointer, error)
}

// LinuxDevices は /dev/input と /dev/uinput を使う実デバイス
func LinuxDevices() Devices {
	return Devices{
		Scan:          features.ScanDevices,
		OpenTrackball: features.OpenTrackball,
		OpenKeyboard:  features.CreateKeyboard,
		CreatePointer: func() (features.Pointer, error) {
			return features.CreatePointer("/dev/uinput", []byte("TrackballLayers"))
		},
	}
}

// ServiceStatus はサービスの実行状態
type ServiceStatus struct {
	Running   bool   `json:"running"`
	Trackball string `json:"trackball,omitempty"`
	Keyboard  string `json:"keyboard,omitempty"`
}

// LayerService はトラックボールの入力をレイヤーに応じて変換するサービス
type LayerService struct {
	cfg          *config.Config
	logger       *slog.Logger
	devices      Devices
	statusMutex  sync.RWMutex
	running      bool
	status       ServiceStatus
	cancel       context.CancelFunc
	done         chan struct{}
	runtime      *firmware.Runtime
	updateConfig chan *config.Config
}

// NewLayerService は新しいサービスを作成する
func NewLayerService(cfg *config.Config, logger *slog.Logger, devices Devices) *LayerService {
	return &LayerService{
		cfg:          cfg,
		logger:       logger,
		devices:      devices,
		updateConfig: make(chan *config.Config, 1),
	}
}

// session は1回の Start から停止までに開いたデバイス
type session struct {
	trackball features.Trackball
	keyboard  features.Keyboard
	pointer   features.Pointer
}

func (ss *session) close() {
	if ss.trackball != nil {
		_ = ss.trackball.Close()
	}
	if ss.keyboard != nil {
		_ = ss.keyboard.Close()
	}
	if ss.pointer != nil {
		_ = ss.pointer.Close()
	}
}

// Start はサービスを開始する
func (s *LayerService) Start() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	tc, err := cfg.TranslatorConfig()
	if err != nil {
		return fmt.Errorf("invalid translator config: %w", err)
	}
	km, err := cfg.KeymapConfig()
	if err != nil {
		return fmt.Errorf("invalid keymap: %w", err)
	}
	opts, err := cfg.RuntimeOptions()
	if err != nil {
		return fmt.Errorf("invalid runtime options: %w", err)
	}

	// デバイス一覧の取得
	devices, err := s.devices.Scan()
	if err != nil {
		return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	trackballDevice, err := features.SelectTrackball(devices, cfg.DevicePrefs.PreferredMouseDevice)
	if err != nil {
		return err
	}

	ss := &session{}
	ss.pointer, err = s.devices.CreatePointer()
	if err != nil {
		return fmt.Errorf("仮想ポインターの作成に失敗しました: %w", err)
	}

	ss.trackball, err = s.devices.OpenTrackball(trackballDevice.Path)
	if err != nil {
		ss.close()
		return fmt.Errorf("トラックボールのオープンに失敗しました[path=%s]: %w", trackballDevice.Path, err)
	}
	if cfg.DevicePrefs.GrabTrackball {
		if err := ss.trackball.Grab(); err != nil {
			ss.close()
			return err
		}
	}

	status := ServiceStatus{Running: true, Trackball: trackballDevice.Name}

	// レイヤーキーがなければキーボードは不要
	if len(opts.LayerKeys) > 0 {
		if keyboardDevice, ok := features.SelectKeyboard(devices, cfg.DevicePrefs.PreferredKeyboardDevice); ok {
			ss.keyboard, err = s.devices.OpenKeyboard(keyboardDevice.Path)
			if err != nil {
				ss.close()
				return fmt.Errorf("キーボードデバイスのオープンに失敗しました: %w", err)
			}
			status.Keyboard = keyboardDevice.Name
		} else {
			s.logger.Warn("キーボードが見つからないためレイヤーキーは使えません")
		}
	}

	rt, err := firmware.New(tc, km, opts, ss.pointer, s.logger)
	if err != nil {
		ss.close()
		return err
	}

	s.logger.Info("使用するトラックボール", "name", status.Trackball)
	if status.Keyboard != "" {
		s.logger.Info("使用するキーボード", "name", status.Keyboard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.runtime = rt
	s.status = status
	s.running = true

	go s.runLoop(ctx, ss, rt, cfg.Motion.PollInterval, s.done)

	return nil
}

// Stop はサービスを停止し、デバイスが解放されるまで待つ
func (s *LayerService) Stop() error {
	s.statusMutex.Lock()
	if !s.running {
		s.statusMutex.Unlock()
		return ErrNotRunning
	}
	s.cancel()
	done := s.done
	s.statusMutex.Unlock()

	<-done
	return nil
}

// Run はサービスを開始し、ctx が終了するかデバイスが切断されるまで待つ
func (s *LayerService) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.statusMutex.RLock()
	done := s.done
	s.statusMutex.RUnlock()

	select {
	case <-ctx.Done():
		if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
		return nil
	case <-done:
		return errors.New("trackball disconnected")
	}
}

// UpdateConfig は設定を更新する
func (s *LayerService) UpdateConfig(cfg *config.Config) {
	s.statusMutex.Lock()
	s.cfg = cfg
	s.statusMutex.Unlock()

	select {
	case s.updateConfig <- cfg:
		// 設定更新チャネルに送信成功
	default:
		// チャネルがブロックされている場合は古い設定を破棄して新しい設定を送信
		select {
		case <-s.updateConfig:
		default:
		}
		s.updateConfig <- cfg
	}
}

// IsRunning はサービスが実行中かどうかを返す
func (s *LayerService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// Status はサービスの実行状態を返す
func (s *LayerService) Status() ServiceStatus {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	if !s.running {
		return ServiceStatus{}
	}
	return s.status
}

// Snapshot はレイヤーと蓄積値の現在の状態を返す
func (s *LayerService) Snapshot() (firmware.Status, error) {
	s.statusMutex.RLock()
	rt, running := s.runtime, s.running
	s.statusMutex.RUnlock()

	if !running {
		return firmware.Status{}, ErrNotRunning
	}
	return rt.Status(), nil
}

// Devices は検出されたデバイス一覧を返す
func (s *LayerService) Devices() ([]features.Device, error) {
	return s.devices.Scan()
}

// runLoop はメインループ。フレームの処理と周期的なポーリングを行う
func (s *LayerService) runLoop(ctx context.Context, ss *session, rt *firmware.Runtime, interval time.Duration, done chan struct{}) {
	frames := make(chan features.Frame, 16)
	readErr := make(chan error, 1)

	defer func() {
		rt.Close()
		ss.close()

		s.statusMutex.Lock()
		s.running = false
		s.runtime = nil
		s.cancel()
		s.statusMutex.Unlock()

		close(done)
		s.logger.Info("レイヤーサービスを停止しました")
	}()

	go func() {
		for {
			f, err := ss.trackball.ReadFrame()
			if err != nil {
				readErr <- err
				return
			}
			// 入力のない周期はティッカー側で回す
			if f.Empty() {
				continue
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("レイヤーサービスを開始しました")

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErr:
			if ctx.Err() == nil {
				s.logger.Error("トラックボールの読み込みに失敗しました", "err", err)
			}
			return

		case f := <-frames:
			rt.HandleFrame(f)

		case <-ticker.C:
			if ss.keyboard != nil {
				pressed, err := ss.keyboard.PressedKeys()
				if err != nil {
					s.logger.Debug("キーボード状態の取得に失敗しました", "err", err)
				} else {
					rt.SetKeyboardKeys(pressed)
				}
			}
			rt.Poll()

		case cfg := <-s.updateConfig:
			if err := s.reconfigure(rt, cfg); err != nil {
				s.logger.Warn("設定を反映できませんでした", "err", err)
				continue
			}
			if cfg.Motion.PollInterval > 0 && cfg.Motion.PollInterval != interval {
				interval = cfg.Motion.PollInterval
				ticker.Reset(interval)
			}
			s.logger.Info("設定を更新しました")
		}
	}
}

func (s *LayerService) reconfigure(rt *firmware.Runtime, cfg *config.Config) error {
	tc, err := cfg.TranslatorConfig()
	if err != nil {
		return err
	}
	km, err := cfg.KeymapConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.RuntimeOptions()
	if err != nil {
		return err
	}
	return rt.Reconfigure(tc, km, opts)
}
