package main

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

// CommError 通訊失敗
// 不區分連線開啟失敗與協議層錯誤，兩者對呼叫端同樣不可處置。
type CommError struct {
	Op  string
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("通訊失敗 (%s): %v", e.Op, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// TransportStats 傳輸統計資訊
type TransportStats struct {
	TransactionCount    atomic.Uint64
	ErrorCount          atomic.Uint64
	LastTransactionTime atomic.Int64
}

// clientHandler goburrow RTU 與 TCP handler 的共同介面
type clientHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// TransportSession 單一串列鏈路上的短連線交易
// 每次呼叫執行恰好一筆 Modbus 交易：開啟連線、讀或寫、關閉連線。
// 連線不跨呼叫快取：串列媒介是獨佔資源，每筆交易自成一個
// 開啟/使用/關閉週期，以每次連線的開銷換取無競爭的存取。
// 互斥鎖保證鏈路上同一時間至多一筆交易。
type TransportSession struct {
	mu sync.Mutex

	serial SerialConfig
	unitID uint8

	stats TransportStats

	logger *zap.Logger
}

// TransportOption TransportSession 配置選項
type TransportOption func(*TransportSession)

// WithTransportLogger 設定日誌
func WithTransportLogger(logger *zap.Logger) TransportOption {
	return func(t *TransportSession) {
		t.logger = logger
	}
}

// NewTransportSession 建立傳輸會話
func NewTransportSession(serial SerialConfig, unitID uint8, opts ...TransportOption) *TransportSession {
	t := &TransportSession{
		serial: serial,
		unitID: unitID,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		t.logger, _ = zap.NewProduction()
	}

	return t
}

// Stats 取得統計資訊
func (t *TransportSession) Stats() *TransportStats {
	return &t.stats
}

// newHandler 依配置建立一次性的 goburrow handler
func (t *TransportSession) newHandler() clientHandler {
	if t.serial.Transport == TransportTCP {
		h := modbus.NewTCPClientHandler(t.serial.Port)
		h.SlaveId = t.unitID
		h.Timeout = t.serial.Timeout
		return h
	}

	h := modbus.NewRTUClientHandler(t.serial.Port)
	h.BaudRate = t.serial.BaudRate
	h.DataBits = t.serial.DataBits
	h.Parity = t.serial.Parity
	h.StopBits = t.serial.StopBits
	h.SlaveId = t.unitID
	h.Timeout = t.serial.Timeout
	return h
}

// ReadHoldingRegisters 讀取保持暫存器 (FC 03)，一筆完整交易
func (t *TransportSession) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recordTransaction()

	h := t.newHandler()
	if err := h.Connect(); err != nil {
		t.stats.ErrorCount.Add(1)
		t.logger.Debug("開啟連線失敗",
			zap.String("port", t.serial.Port),
			zap.Error(err),
		)
		return nil, &CommError{Op: "connect", Err: err}
	}
	// 無論結果如何都關閉連線；關閉失敗不改變已確定的交易結果
	defer h.Close()

	data, err := modbus.NewClient(h).ReadHoldingRegisters(address, quantity)
	if err != nil {
		t.stats.ErrorCount.Add(1)
		t.logger.Debug("讀取保持暫存器失敗",
			zap.Uint16("address", address),
			zap.Uint16("quantity", quantity),
			zap.Error(err),
		)
		return nil, &CommError{Op: "read", Err: err}
	}

	if len(data) < int(quantity)*2 {
		t.stats.ErrorCount.Add(1)
		return nil, &CommError{Op: "read", Err: fmt.Errorf("回應長度不足: %d bytes", len(data))}
	}

	return BytesToRegisters(data), nil
}

// WriteSingleRegister 寫入單一暫存器 (FC 06)，一筆完整交易
func (t *TransportSession) WriteSingleRegister(address, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recordTransaction()

	h := t.newHandler()
	if err := h.Connect(); err != nil {
		t.stats.ErrorCount.Add(1)
		t.logger.Debug("開啟連線失敗",
			zap.String("port", t.serial.Port),
			zap.Error(err),
		)
		return &CommError{Op: "connect", Err: err}
	}
	defer h.Close()

	if _, err := modbus.NewClient(h).WriteSingleRegister(address, value); err != nil {
		t.stats.ErrorCount.Add(1)
		t.logger.Debug("寫入暫存器失敗",
			zap.Uint16("address", address),
			zap.Uint16("value", value),
			zap.Error(err),
		)
		return &CommError{Op: "write", Err: err}
	}

	return nil
}

// recordTransaction 記錄交易
func (t *TransportSession) recordTransaction() {
	t.stats.TransactionCount.Add(1)
	t.stats.LastTransactionTime.Store(time.Now().UnixNano())
}

// BytesToRegisters 將位元組陣列轉換為暫存器值 (Big Endian)
func BytesToRegisters(data []byte) []uint16 {
	registers := make([]uint16, len(data)/2)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return registers
}
