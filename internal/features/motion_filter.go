package features

import "math"

// MotionFilter はトラックボールの移動値（dx, dy）を指数移動平均で滑らかにします
// smoothingFactor が 0 の場合は何もしません
type MotionFilter struct {
	smoothingFactor float64 // 0.0-1.0の範囲。1.0に近いほど滑らかになりますが、遅延が大きくなります
	lastDX          float64
	lastDY          float64
	warmUpCount     int
	currentCount    int
}

// 新しいモーションフィルターを作成します
func NewMotionFilter(smoothingFactor float64, warmUpCount int) *MotionFilter {
	return &MotionFilter{
		smoothingFactor: math.Max(0, math.Min(smoothingFactor, 0.99)),
		warmUpCount:     warmUpCount,
	}
}

// raw dx, dy値にsmoothingを適用します
func (mf *MotionFilter) Filter(dxRaw, dyRaw int32) (int32, int32) {
	if mf.smoothingFactor == 0 {
		return dxRaw, dyRaw
	}

	// ウォームアップ中は生の値をそのまま使う
	if mf.currentCount < mf.warmUpCount {
		mf.currentCount++
		mf.lastDX = float64(dxRaw)
		mf.lastDY = float64(dyRaw)
		return dxRaw, dyRaw
	}

	f := mf.smoothingFactor
	mf.lastDX = float64(dxRaw)*(1.0-f) + mf.lastDX*f
	mf.lastDY = float64(dyRaw)*(1.0-f) + mf.lastDY*f

	return int32(math.Round(mf.lastDX)), int32(math.Round(mf.lastDY))
}

// フィルターの状態をリセットします
func (mf *MotionFilter) Reset() {
	mf.lastDX = 0
	mf.lastDY = 0
	mf.currentCount = 0
}
