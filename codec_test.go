package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec() *Codec {
	return NewCodec(DriveConfig{
		BaseFreqHz: 50.0,
		LimitsHz:   FrequencyLimits{Min: 25.0, Max: 50.0},
	})
}

func TestCodec_ClampHz(t *testing.T) {
	c := testCodec()

	tests := []struct {
		name string
		hz   float64
		want float64
	}{
		{"低於下限", 10.0, 25.0},
		{"高於上限", 60.0, 50.0},
		{"帶內不變", 37.5, 37.5},
		{"下限邊界", 25.0, 25.0},
		{"上限邊界", 50.0, 50.0},
		{"負值", -5.0, 25.0},
		{"遠超上限", 1000.0, 50.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ClampHz(tt.hz))
		})
	}
}

func TestCodec_EncodeFreqCommand(t *testing.T) {
	c := testCodec()

	// 基準頻率 = 滿刻度
	assert.Equal(t, int16(10000), c.EncodeFreqCommand(50.0))
	assert.Equal(t, int16(5000), c.EncodeFreqCommand(25.0))
	assert.Equal(t, int16(0), c.EncodeFreqCommand(0.0))
	assert.Equal(t, int16(-5000), c.EncodeFreqCommand(-25.0))

	// 四捨五入
	assert.Equal(t, int16(7460), c.EncodeFreqCommand(37.3))
}

func TestCodec_EncodeFreqCommand_NoRegisterClamp(t *testing.T) {
	// 編碼不夾限到 ±10000：夾限責任在工程單位層
	c := testCodec()
	assert.Equal(t, int16(12000), c.EncodeFreqCommand(60.0))
}

func TestCodec_FreqCommandRoundTrip(t *testing.T) {
	c := testCodec()

	// 往返誤差在萬分之一以內
	tolerance := c.BaseFreqHz / FreqCommandFullScale
	for hz := c.MinHz; hz <= c.MaxHz; hz += 0.37 {
		raw := c.EncodeFreqCommand(hz)
		got := c.DecodeFreqCommand(uint16(raw))
		assert.InDelta(t, hz, got, tolerance, "hz=%.2f", hz)
	}
}

func TestCodec_DecodeFreqCommand_Negative(t *testing.T) {
	c := testCodec()

	// -10000 (二補數) 對應 -100% 基準頻率
	neg := int16(-10000)
	raw := uint16(neg)
	assert.InDelta(t, -50.0, c.DecodeFreqCommand(raw), 0.001)
}

func TestCodec_DecodeFreqFeedback(t *testing.T) {
	c := testCodec()

	assert.Equal(t, 0.0, c.DecodeFreqFeedback(0))
	assert.InDelta(t, 50.0, c.DecodeFreqFeedback(5000), 0.001)
	assert.InDelta(t, 0.01, c.DecodeFreqFeedback(1), 0.001)

	// 負的原始值 (二補數) 同樣是 raw/100
	negOne := int16(-1)
	assert.InDelta(t, -0.01, c.DecodeFreqFeedback(uint16(negOne)), 0.001)

	// 刻度與基準頻率無關
	other := NewCodec(DriveConfig{
		BaseFreqHz: 60.0,
		LimitsHz:   FrequencyLimits{Min: 0, Max: 60},
	})
	assert.Equal(t, c.DecodeFreqFeedback(5000), other.DecodeFreqFeedback(5000))
}

func TestCodec_DecodeCurrentFeedback(t *testing.T) {
	c := testCodec()

	tests := []struct {
		raw  uint16
		want float64
	}{
		{0, 0.0},
		{85, 85.0},    // 門檻以下視為整數安培
		{200, 200.0},  // 邊界：啟發式嚴格大於 200 才切換
		{201, 2.01},   // 邊界之上視為 0.01 A 單位
		{1250, 12.50},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("raw=%d", tt.raw), func(t *testing.T) {
			assert.InDelta(t, tt.want, c.DecodeCurrentFeedback(tt.raw), 0.001)
		})
	}
}

func TestDecodeStatusText(t *testing.T) {
	assert.Equal(t, "RUN FWD", DecodeStatusText(1))
	assert.Equal(t, "RUN REV", DecodeStatusText(2))
	assert.Equal(t, "STOP", DecodeStatusText(3))
	assert.Equal(t, "STATE 9", DecodeStatusText(9))
	assert.Equal(t, "STATE 0", DecodeStatusText(0))
}

func TestDecodeFault(t *testing.T) {
	// 恆等轉換；0 依慣例表示無故障
	assert.Equal(t, uint16(0), DecodeFault(0))
	assert.Equal(t, uint16(5), DecodeFault(5))
	assert.Equal(t, uint16(0xE001), DecodeFault(0xE001))
}

func TestCommand_RegisterValue(t *testing.T) {
	tests := []struct {
		cmd  Command
		want uint16
	}{
		{CommandStart, 1},
		{CommandStop, 6},
		{CommandReset, 7},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			value, err := tt.cmd.RegisterValue()
			require.NoError(t, err)
			assert.Equal(t, tt.want, value)
		})
	}

	// 封閉集合之外的值被拒絕
	_, err := Command(99).RegisterValue()
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("start")
	require.NoError(t, err)
	assert.Equal(t, CommandStart, cmd)

	cmd, err = ParseCommand("stop")
	require.NoError(t, err)
	assert.Equal(t, CommandStop, cmd)

	cmd, err = ParseCommand("reset")
	require.NoError(t, err)
	assert.Equal(t, CommandReset, cmd)

	_, err = ParseCommand("jog")
	assert.Error(t, err)
}

func BenchmarkCodec_EncodeFreqCommand(b *testing.B) {
	c := testCodec()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.EncodeFreqCommand(37.5)
	}
}

func BenchmarkCodec_DecodeCurrentFeedback(b *testing.B) {
	c := testCodec()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.DecodeCurrentFeedback(1250)
	}
}
