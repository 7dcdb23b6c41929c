package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultByIDDir は永続的なデバイス名が並ぶディレクトリ
const DefaultByIDDir = "/dev/input/by-id"

// ErrNoTrackball はトラックボールが見つからない場合のエラー
var ErrNoTrackball = errors.New("no trackball device found")

type Device struct {
	Name string     `json:"name"`
	Path string     `json:"path"`
	Type DeviceType `json:"type"`
}

// デバイスタイプを表す列挙型
type DeviceType int

const (
	DeviceTypeKeyboard DeviceType = iota
	DeviceTypeMouse
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeKeyboard:
		return "keyboard"
	case DeviceTypeMouse:
		return "mouse"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(t))
	}
}

// MarshalText はJSON出力用の名前を返す
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// 名前にこれらが含まれるマウスをトラックボールとみなす
var trackballKeywords = []string{
	"trackball",
	"ploopy",
	"expert_mouse",
	"orbit",
	"slimblade",
	"keyball",
}

// IsTrackball はデバイス名がトラックボールらしいかどうかを返す
func IsTrackball(name string) bool {
	name = strings.ToLower(name)
	for _, keyword := range trackballKeywords {
		if strings.Contains(name, keyword) {
			return true
		}
	}
	return false
}

// ScanDevices は /dev/input/by-id からキーボードとマウスを検出する
func ScanDevices() ([]Device, error) {
	return ScanDir(DefaultByIDDir)
}

// ScanDir は指定ディレクトリのシンボリックリンクからデバイスを検出する
func ScanDir(dir string) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, entry := range entries {
		// eventが含まれない場合はスキップ
		if !strings.Contains(entry.Name(), "event") {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Join(filepath.Dir(dir), filepath.Base(realPath))
		}

		if strings.Contains(entry.Name(), "kbd") {
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeKeyboard})
		}
		if strings.Contains(entry.Name(), "mouse") {
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeMouse})
		}
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// SelectTrackball は優先デバイス名、トラックボールらしい名前、最初のマウスの順で選ぶ
func SelectTrackball(devices []Device, preferred string) (Device, error) {
	var first, named *Device
	for i := range devices {
		d := &devices[i]
		if d.Type != DeviceTypeMouse {
			continue
		}
		if preferred != "" && d.Name == preferred {
			return *d, nil
		}
		if first == nil {
			first = d
		}
		if named == nil && IsTrackball(d.Name) {
			named = d
		}
	}
	switch {
	case named != nil:
		return *named, nil
	case first != nil:
		return *first, nil
	default:
		return Device{}, ErrNoTrackball
	}
}

// SelectKeyboard は優先デバイス名、最初のキーボードの順で選ぶ
func SelectKeyboard(devices []Device, preferred string) (Device, bool) {
	var first *Device
	for i := range devices {
		d := &devices[i]
		if d.Type != DeviceTypeKeyboard {
			continue
		}
		if preferred != "" && d.Name == preferred {
			return *d, true
		}
		if first == nil {
			first = d
		}
	}
	if first == nil {
		return Device{}, false
	}
	return *first, true
}

// DeviceEventType はデバイスイベントの種類を表す
type DeviceEventType int

const (
	DeviceAdded DeviceEventType = iota
	DeviceRemoved
)

// DeviceEvent はデバイスの変更イベントを表す
type DeviceEvent struct {
	Type   DeviceEventType
	Device Device
}

// DeviceCallback はデバイスイベント発生時に呼び出されるコールバック関数の型
type DeviceCallback func(event DeviceEvent)

// DeviceMonitor はデバイスの接続状態を監視する構造体
type DeviceMonitor struct {
	dir       string
	logger    *slog.Logger
	debounce  time.Duration
	mutex     sync.RWMutex
	devices   map[string]Device // パスをキーにしたデバイスマップ
	callbacks []DeviceCallback
}

// NewDeviceMonitor は指定ディレクトリを監視するDeviceMonitorを作成する
func NewDeviceMonitor(dir string, logger *slog.Logger) *DeviceMonitor {
	return &DeviceMonitor{
		dir:      dir,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		devices:  make(map[string]Device),
	}
}

// RegisterCallback はデバイスイベントのコールバック関数を登録する
func (dm *DeviceMonitor) RegisterCallback(callback DeviceCallback) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	dm.callbacks = append(dm.callbacks, callback)
}

// Devices は現在接続されているデバイスのスナップショットを返す
func (dm *DeviceMonitor) Devices() []Device {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	devices := make([]Device, 0, len(dm.devices))
	for _, device := range dm.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// Run は ctx が終了するまでディレクトリを監視する
func (dm *DeviceMonitor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dm.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dm.dir, err)
	}
	dm.logger.Info("デバイスモニターを開始します", "dir", dm.dir)
	dm.Rescan()

	// 一時的なファイルシステムイベントをまとめて処理する
	timer := time.NewTimer(dm.debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			dm.logger.Info("デバイスモニターを停止します")
			return nil

		case <-timer.C:
			if pending {
				pending = false
				dm.Rescan()
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			dm.logger.Debug("ファイルシステムイベント", "op", event.Op.String(), "name", event.Name)
			if !pending {
				pending = true
				timer.Reset(dm.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			dm.logger.Warn("ファイルシステム監視エラー", "err", err)
		}
	}
}

// Rescan はデバイス一覧を再スキャンし、差分をコールバックに通知する
func (dm *DeviceMonitor) Rescan() {
	devices, err := ScanDir(dm.dir)
	if err != nil {
		dm.logger.Warn("デバイス再スキャンに失敗しました", "err", err)
		return
	}

	var events []DeviceEvent
	dm.mutex.Lock()
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		key := d.Path + "|" + d.Type.String()
		seen[key] = true
		if _, ok := dm.devices[key]; !ok {
			dm.devices[key] = d
			events = append(events, DeviceEvent{Type: DeviceAdded, Device: d})
		}
	}
	for key, d := range dm.devices {
		if !seen[key] {
			delete(dm.devices, key)
			events = append(events, DeviceEvent{Type: DeviceRemoved, Device: d})
		}
	}
	callbacks := append([]DeviceCallback(nil), dm.callbacks...)
	dm.mutex.Unlock()

	for _, ev := range events {
		if ev.Type == DeviceAdded {
			dm.logger.Info("デバイス接続", "name", ev.Device.Name, "path", ev.Device.Path)
		} else {
			dm.logger.Info("デバイス切断", "name", ev.Device.Name, "path", ev.Device.Path)
		}
		for _, cb := range callbacks {
			cb(ev)
		}
	}
}
