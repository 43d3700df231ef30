package main

import (
	"fmt"
	"math"
)

// 頻率命令暫存器滿刻度：±10000 對應基準頻率的 ±100%
const FreqCommandFullScale = 10000

// 頻率回授暫存器固定為 0.01 Hz 單位，與基準頻率無關
const freqFeedbackScale = 100.0

// 電流單位啟發式門檻：原始值大於 200 視為 0.01 A 單位，
// 否則視為整數安培。裝置韌體在低電流區段不自述單位，
// 此門檻是近似值而非精確定律，邊界附近可能誤判。
const currentCentiampThreshold = 200

// Codec 工程單位與 16 位元暫存器原始值之間的純轉換
// 無 I/O、無共享狀態，所有方法皆可安全併發呼叫。
type Codec struct {
	BaseFreqHz float64
	MinHz      float64
	MaxHz      float64
}

// NewCodec 由驅動配置建立轉換器
func NewCodec(cfg DriveConfig) *Codec {
	return &Codec{
		BaseFreqHz: cfg.BaseFreqHz,
		MinHz:      cfg.LimitsHz.Min,
		MaxHz:      cfg.LimitsHz.Max,
	}
}

// ClampHz 將請求頻率夾限到可命令頻率帶 [MinHz, MaxHz]
// 每個頻率命令在編碼前都必須經過此夾限。
func (c *Codec) ClampHz(hz float64) float64 {
	return math.Max(c.MinHz, math.Min(c.MaxHz, hz))
}

// EncodeFreqCommand 將頻率編碼為 ±10000 滿刻度的命令暫存器值
// 結果不再夾限到 ±10000：夾限責任在工程單位層 (ClampHz)，
// 若基準頻率遠小於上限，暫存器值可合法超出滿刻度。
func (c *Codec) EncodeFreqCommand(hz float64) int16 {
	return int16(math.Round(hz / c.BaseFreqHz * FreqCommandFullScale))
}

// DecodeFreqCommand 將命令暫存器原始值還原為頻率 (Hz)
func (c *Codec) DecodeFreqCommand(raw uint16) float64 {
	return float64(int16(raw)) / FreqCommandFullScale * c.BaseFreqHz
}

// DecodeFreqFeedback 將頻率回授原始值轉換為 Hz (0.01 Hz 單位)
func (c *Codec) DecodeFreqFeedback(raw uint16) float64 {
	return float64(int16(raw)) / freqFeedbackScale
}

// DecodeCurrentFeedback 將電流回授原始值轉換為安培
// 採用啟發式雙刻度：raw > 200 視為 0.01 A，否則視為整數安培。
func (c *Codec) DecodeCurrentFeedback(raw uint16) float64 {
	if raw > currentCentiampThreshold {
		return float64(raw) / 100.0
	}
	return float64(raw)
}

// DecodeStatusText 將狀態暫存器原始值轉換為狀態文字
// 全函數，未知值格式化為 "STATE {raw}"，沒有失敗情況。
func DecodeStatusText(raw uint16) string {
	switch raw {
	case statusCodeRunForward:
		return "RUN FWD"
	case statusCodeRunReverse:
		return "RUN REV"
	case statusCodeStopped:
		return "STOP"
	default:
		return fmt.Sprintf("STATE %d", raw)
	}
}

// DecodeFault 將故障暫存器原始值轉換為故障碼
// 恆等轉換；0 依慣例表示無故障，其餘為裝置特定故障碼。
func DecodeFault(raw uint16) uint16 {
	return raw
}
