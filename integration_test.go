// +build integration

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
	"go.uber.org/zap"
)

// newSimulatedDrive 啟動一個記憶體中的模擬變頻器 (Modbus TCP slave)
func newSimulatedDrive(t *testing.T, addr string) *mbserver.Server {
	t.Helper()

	server := mbserver.NewServer()
	require.NoError(t, server.ListenTCP(addr))
	t.Cleanup(server.Close)

	// 等待伺服器啟動
	time.Sleep(100 * time.Millisecond)

	return server
}

// tcpTestConfig 以 tcp 傳輸模式指向模擬變頻器的配置
func tcpTestConfig(endpoint string) *Config {
	cfg := DefaultConfig()
	cfg.Serial.Transport = TransportTCP
	cfg.Serial.Port = endpoint
	cfg.Serial.Timeout = 2 * time.Second
	return cfg
}

func TestDriveIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	sim := newSimulatedDrive(t, "127.0.0.1:5520")
	cfg := tcpTestConfig("127.0.0.1:5520")
	regs := cfg.Drive.Registers

	// 預載模擬變頻器狀態：正轉運行、無故障、49.98 Hz、12.50 A
	sim.HoldingRegisters[regs.Status] = 1
	sim.HoldingRegisters[regs.Fault] = 0
	sim.HoldingRegisters[regs.FreqSet] = 10000
	sim.HoldingRegisters[regs.FreqFb] = 4998
	sim.HoldingRegisters[regs.CurrentFb] = 1250

	logger, _ := zap.NewDevelopment()
	session := NewTransportSession(cfg.Serial, cfg.Drive.UnitID, WithTransportLogger(logger))
	drive := NewDrive(cfg.Drive, session, WithDriveLogger(logger))

	// 測試狀態快照 (五筆獨立交易)
	t.Run("Snapshot", func(t *testing.T) {
		snapshot := drive.Snapshot()

		assert.Equal(t, "RUN FWD", snapshot.Status)
		require.NotNil(t, snapshot.Fault)
		assert.Equal(t, uint16(0), *snapshot.Fault)
		require.NotNil(t, snapshot.FreqCmd)
		assert.InDelta(t, 50.0, *snapshot.FreqCmd, 0.001)
		require.NotNil(t, snapshot.FreqAct)
		assert.InDelta(t, 49.98, *snapshot.FreqAct, 0.001)
		require.NotNil(t, snapshot.Amps)
		assert.InDelta(t, 12.50, *snapshot.Amps, 0.001)
	})

	// 測試頻率設定 (FC 06)
	t.Run("SetFrequency", func(t *testing.T) {
		ok, effective, value := drive.SetFrequency(40.0)
		require.True(t, ok)
		assert.Equal(t, 40.0, effective)
		assert.Equal(t, int16(8000), value)

		// 模擬變頻器收到寫入值
		assert.Equal(t, uint16(8000), sim.HoldingRegisters[regs.FreqSet])

		// 讀回驗證
		hz := drive.ReadCommandedFreq()
		require.NotNil(t, hz)
		assert.InDelta(t, 40.0, *hz, 0.001)
	})

	// 測試超出頻率帶的設定被夾限
	t.Run("SetFrequencyClamped", func(t *testing.T) {
		ok, effective, value := drive.SetFrequency(75.0)
		require.True(t, ok)
		assert.Equal(t, 50.0, effective)
		assert.Equal(t, int16(10000), value)
		assert.Equal(t, uint16(10000), sim.HoldingRegisters[regs.FreqSet])
	})

	// 測試驅動命令 (FC 06 到命令暫存器)
	t.Run("IssueCommand", func(t *testing.T) {
		require.True(t, drive.IssueCommand(CommandStart))
		assert.Equal(t, uint16(1), sim.HoldingRegisters[regs.Command])

		require.True(t, drive.IssueCommand(CommandStop))
		assert.Equal(t, uint16(6), sim.HoldingRegisters[regs.Command])

		require.True(t, drive.IssueCommand(CommandReset))
		assert.Equal(t, uint16(7), sim.HoldingRegisters[regs.Command])
	})

	// 測試交易統計
	t.Run("TransportStats", func(t *testing.T) {
		stats := session.Stats()
		assert.Greater(t, stats.TransactionCount.Load(), uint64(0))
		assert.Equal(t, uint64(0), stats.ErrorCount.Load())
	})
}

func TestDriveIntegration_NoComm(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// 指向沒有任何裝置監聽的端點
	cfg := tcpTestConfig("127.0.0.1:5529")
	cfg.Serial.Timeout = 500 * time.Millisecond

	logger, _ := zap.NewDevelopment()
	session := NewTransportSession(cfg.Serial, cfg.Drive.UnitID, WithTransportLogger(logger))
	drive := NewDrive(cfg.Drive, session, WithDriveLogger(logger))

	// 所有操作安靜降級
	snapshot := drive.Snapshot()
	assert.Equal(t, StatusNoComm, snapshot.Status)
	assert.Nil(t, snapshot.Fault)
	assert.Nil(t, snapshot.FreqCmd)
	assert.Nil(t, snapshot.FreqAct)
	assert.Nil(t, snapshot.Amps)

	assert.False(t, drive.IssueCommand(CommandStart))

	ok, _, _ := drive.SetFrequency(40.0)
	assert.False(t, ok)

	// 失敗計入統計
	stats := session.Stats()
	assert.Greater(t, stats.ErrorCount.Load(), uint64(0))
}

func TestTransportSession_FaultCodePassthrough(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	sim := newSimulatedDrive(t, "127.0.0.1:5521")
	cfg := tcpTestConfig("127.0.0.1:5521")
	regs := cfg.Drive.Registers

	// 非零故障碼是資料而非錯誤：停機狀態 + 故障碼 17
	sim.HoldingRegisters[regs.Status] = 4
	sim.HoldingRegisters[regs.Fault] = 17

	session := NewTransportSession(cfg.Serial, cfg.Drive.UnitID, WithTransportLogger(zap.NewNop()))
	drive := NewDrive(cfg.Drive, session, WithDriveLogger(zap.NewNop()))

	snapshot := drive.Snapshot()
	assert.Equal(t, "STATE 4", snapshot.Status)
	require.NotNil(t, snapshot.Fault)
	assert.Equal(t, uint16(17), *snapshot.Fault)
}

func BenchmarkDriveSnapshot(b *testing.B) {
	server := mbserver.NewServer()
	if err := server.ListenTCP("127.0.0.1:5522"); err != nil {
		b.Fatal(err)
	}
	defer server.Close()

	time.Sleep(100 * time.Millisecond)

	cfg := tcpTestConfig("127.0.0.1:5522")
	session := NewTransportSession(cfg.Serial, cfg.Drive.UnitID, WithTransportLogger(zap.NewNop()))
	drive := NewDrive(cfg.Drive, session, WithDriveLogger(zap.NewNop()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		drive.Snapshot()
	}
}
