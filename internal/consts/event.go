package consts

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn       = 0x00 // 同期イベント
	Key       = 0x01 // キーイベント
	Rel       = 0x02 // 相対座標イベント
	RelX      = 0x00 // X軸の相対移動
	RelY      = 0x01 // Y軸の相対移動
	RelHWheel = 0x06 // 横ホイール
	RelWheel  = 0x08 // 縦ホイール
	SynReport = 0    // イベント報告の同期
)

// マウスボタン
const (
	BtnLeft    = 0x110 // 左
	BtnRight   = 0x111 // 右
	BtnMiddle  = 0x112 // 中
	BtnSide    = 0x113 // 戻る
	BtnExtra   = 0x114 // 進む
	BtnForward = 0x115
	BtnBack    = 0x116
	BtnTask    = 0x117
)
