package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTransportSession_ConnectFailure(t *testing.T) {
	// 不存在的串列埠：開啟失敗立即折疊為 CommError
	session := NewTransportSession(SerialConfig{
		Transport: TransportRTU,
		Port:      "/nonexistent/ttyUSB99",
		BaudRate:  9600,
		Parity:    "N",
		StopBits:  1,
		DataBits:  8,
		Timeout:   200 * time.Millisecond,
	}, 1, WithTransportLogger(zap.NewNop()))

	_, err := session.ReadHoldingRegisters(0x3001, 1)
	require.Error(t, err)

	var commErr *CommError
	assert.True(t, errors.As(err, &commErr))
	assert.Equal(t, "connect", commErr.Op)

	err = session.WriteSingleRegister(0x2000, 1)
	require.Error(t, err)
	assert.True(t, errors.As(err, &commErr))

	// 每次呼叫都是一筆交易，失敗計入統計
	stats := session.Stats()
	assert.Equal(t, uint64(2), stats.TransactionCount.Load())
	assert.Equal(t, uint64(2), stats.ErrorCount.Load())
	assert.NotZero(t, stats.LastTransactionTime.Load())
}

func TestCommError_Unwrap(t *testing.T) {
	inner := errors.New("連線被拒絕")
	err := &CommError{Op: "connect", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connect")
}

func TestBytesToRegisters(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	registers := BytesToRegisters(data)
	assert.Equal(t, []uint16{0x0102, 0x0304}, registers)
}

func TestBytesToRegisters_Empty(t *testing.T) {
	assert.Empty(t, BytesToRegisters(nil))
}
