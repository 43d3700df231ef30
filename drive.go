package main

import (
	"go.uber.org/zap"
)

// DriveStatus 變頻器狀態快照
// 每個欄位來自獨立的暫存器讀取，單一讀取失敗只讓該欄位缺席，
// 不影響其他欄位；Status 恆有值。五筆交易依序執行，
// 欄位間不保證同一瞬間的一致性。
type DriveStatus struct {
	Status  string   `json:"status"`
	Fault   *uint16  `json:"fault"`
	FreqCmd *float64 `json:"freq_cmd"`
	FreqAct *float64 `json:"freq_act"`
	Amps    *float64 `json:"amps"`
}

// Transport Drive 所需的交易介面
type Transport interface {
	ReadHoldingRegisters(address, quantity uint16) ([]uint16, error)
	WriteSingleRegister(address, value uint16) error
}

// Drive 高階變頻器客戶端
// 組合傳輸與編解碼，將暫存器交易包裝為工程單位操作。
// 所有讀寫失敗都在此吸收為缺席值或布林結果，
// 裝置斷線或異常不會讓任何錯誤越過此邊界。
type Drive struct {
	transport Transport
	codec     *Codec
	registers RegisterConfig

	logger *zap.Logger
}

// DriveOption Drive 配置選項
type DriveOption func(*Drive)

// WithDriveLogger 設定日誌
func WithDriveLogger(logger *zap.Logger) DriveOption {
	return func(d *Drive) {
		d.logger = logger
	}
}

// NewDrive 建立變頻器客戶端
func NewDrive(cfg DriveConfig, transport Transport, opts ...DriveOption) *Drive {
	d := &Drive{
		transport: transport,
		codec:     NewCodec(cfg),
		registers: cfg.Registers,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger, _ = zap.NewProduction()
	}

	return d
}

// readRegister 讀取單一暫存器，失敗時返回 ok=false
func (d *Drive) readRegister(address uint16) (uint16, bool) {
	regs, err := d.transport.ReadHoldingRegisters(address, 1)
	if err != nil || len(regs) < 1 {
		return 0, false
	}
	return regs[0], true
}

// ReadCommandedFreq 讀取命令頻率 (Hz)，通訊失敗時返回 nil
func (d *Drive) ReadCommandedFreq() *float64 {
	raw, ok := d.readRegister(d.registers.FreqSet)
	if !ok {
		return nil
	}
	hz := d.codec.DecodeFreqCommand(raw)
	return &hz
}

// ReadActualFreq 讀取實際輸出頻率 (Hz)，通訊失敗時返回 nil
func (d *Drive) ReadActualFreq() *float64 {
	raw, ok := d.readRegister(d.registers.FreqFb)
	if !ok {
		return nil
	}
	hz := d.codec.DecodeFreqFeedback(raw)
	return &hz
}

// ReadCurrent 讀取輸出電流 (A)，通訊失敗時返回 nil
func (d *Drive) ReadCurrent() *float64 {
	raw, ok := d.readRegister(d.registers.CurrentFb)
	if !ok {
		return nil
	}
	amps := d.codec.DecodeCurrentFeedback(raw)
	return &amps
}

// ReadStatusText 讀取狀態文字
// 恆有值：通訊失敗時返回 "No comm" 而非缺席。
func (d *Drive) ReadStatusText() string {
	raw, ok := d.readRegister(d.registers.Status)
	if !ok {
		return StatusNoComm
	}
	return DecodeStatusText(raw)
}

// ReadFault 讀取故障碼，通訊失敗時返回 nil
// 非零故障碼是資料而非錯誤，原樣透傳給呼叫端。
func (d *Drive) ReadFault() *uint16 {
	raw, ok := d.readRegister(d.registers.Fault)
	if !ok {
		return nil
	}
	code := DecodeFault(raw)
	return &code
}

// IssueCommand 下達命令，返回寫入是否成功
// 只會寫入封閉命令集合對應的固定暫存器值。
func (d *Drive) IssueCommand(cmd Command) bool {
	value, err := cmd.RegisterValue()
	if err != nil {
		d.logger.Error("拒絕未知命令", zap.Error(err))
		return false
	}

	if err := d.transport.WriteSingleRegister(d.registers.Command, value); err != nil {
		d.logger.Warn("命令寫入失敗",
			zap.String("command", cmd.String()),
			zap.Uint16("value", value),
			zap.Error(err),
		)
		return false
	}

	d.logger.Info("命令已下達",
		zap.String("command", cmd.String()),
		zap.Uint16("value", value),
	)
	return true
}

// SetFrequency 設定命令頻率
// 先夾限到可命令頻率帶再編碼寫入，返回寫入是否成功、
// 實際生效的頻率與寫入的原始值，呼叫端可據此回報。
func (d *Drive) SetFrequency(hz float64) (bool, float64, int16) {
	clamped := d.codec.ClampHz(hz)
	encoded := d.codec.EncodeFreqCommand(clamped)

	if err := d.transport.WriteSingleRegister(d.registers.FreqSet, uint16(encoded)); err != nil {
		d.logger.Warn("頻率寫入失敗",
			zap.Float64("hz", clamped),
			zap.Int16("value", encoded),
			zap.Error(err),
		)
		return false, clamped, encoded
	}

	d.logger.Info("頻率已設定",
		zap.Float64("requested_hz", hz),
		zap.Float64("effective_hz", clamped),
		zap.Int16("value", encoded),
	)
	return true, clamped, encoded
}

// Snapshot 讀取完整狀態快照
// 五個欄位各自獨立讀取，任一失敗不中止其餘讀取。
func (d *Drive) Snapshot() DriveStatus {
	return DriveStatus{
		Status:  d.ReadStatusText(),
		Fault:   d.ReadFault(),
		FreqCmd: d.ReadCommandedFreq(),
		FreqAct: d.ReadActualFreq(),
		Amps:    d.ReadCurrent(),
	}
}
