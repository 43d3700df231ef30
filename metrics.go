package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MetricsCollector 指標收集器
// 只彙整傳輸層既有的交易統計與最近一次快照，
// 不會自行對串列鏈路發起交易。
type MetricsCollector struct {
	mu sync.RWMutex

	// 傳輸統計來源
	session *TransportSession

	// 最近一次狀態快照 (由 HMI 或 watch 迴圈回報)
	lastStatus   DriveStatus
	lastStatusAt time.Time
	hasStatus    bool

	// 歷史記錄 (用於計算速率)
	history    []transactionSample
	maxHistory int

	startTime time.Time

	logger *zap.Logger
}

type transactionSample struct {
	timestamp    time.Time
	transactions uint64
	errors       uint64
}

// MetricsSnapshot 指標快照
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`

	// 交易指標
	TotalTransactions  uint64  `json:"total_transactions"`
	TotalErrors        uint64  `json:"total_errors"`
	ErrorRate          float64 `json:"error_rate"`
	TransactionsPerSec float64 `json:"transactions_per_sec"`

	// 最近快照 (樣本)
	DriveStatus string   `json:"drive_status,omitempty"`
	FreqCmd     *float64 `json:"freq_cmd,omitempty"`
	FreqAct     *float64 `json:"freq_act,omitempty"`
	Amps        *float64 `json:"amps,omitempty"`
	Fault       *uint16  `json:"fault,omitempty"`
}

// NewMetricsCollector 建立指標收集器
func NewMetricsCollector(session *TransportSession, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		session:    session,
		logger:     logger,
		maxHistory: 60, // 保留 60 個樣本 (用於計算每秒速率)
	}
}

// Start 啟動指標收集
func (m *MetricsCollector) Start(endpoint string, port int) error {
	m.startTime = time.Now()

	// 啟動背景收集
	go m.collectLoop()

	// 啟動 HTTP 伺服器
	mux := http.NewServeMux()
	mux.HandleFunc(endpoint, m.handleMetrics)

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("啟動指標伺服器", zap.String("addr", addr))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("指標伺服器錯誤", zap.Error(err))
		}
	}()

	return nil
}

// RecordSnapshot 回報最近一次狀態快照
func (m *MetricsCollector) RecordSnapshot(status DriveStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastStatus = status
	m.lastStatusAt = time.Now()
	m.hasStatus = true
}

// collectLoop 背景收集迴圈
func (m *MetricsCollector) collectLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collect()
	}
}

// collect 收集指標
func (m *MetricsCollector) collect() {
	if m.session == nil {
		return
	}

	stats := m.session.Stats()

	m.mu.Lock()
	defer m.mu.Unlock()

	sample := transactionSample{
		timestamp:    time.Now(),
		transactions: stats.TransactionCount.Load(),
		errors:       stats.ErrorCount.Load(),
	}
	m.history = append(m.history, sample)
	if len(m.history) > m.maxHistory {
		m.history = m.history[1:]
	}
}

// Snapshot 取得指標快照
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalTxns, totalErrs uint64
	if m.session != nil {
		stats := m.session.Stats()
		totalTxns = stats.TransactionCount.Load()
		totalErrs = stats.ErrorCount.Load()
	}

	snapshot := MetricsSnapshot{
		Timestamp:         time.Now(),
		Uptime:            time.Since(m.startTime).String(),
		TotalTransactions: totalTxns,
		TotalErrors:       totalErrs,
	}

	// 計算錯誤率
	if totalTxns > 0 {
		snapshot.ErrorRate = float64(totalErrs) / float64(totalTxns) * 100
	}

	// 計算每秒交易數 (使用最近的歷史記錄)
	if len(m.history) >= 2 {
		first := m.history[0]
		last := m.history[len(m.history)-1]
		duration := last.timestamp.Sub(first.timestamp).Seconds()
		if duration > 0 {
			snapshot.TransactionsPerSec = float64(last.transactions-first.transactions) / duration
		}
	}

	// 最近快照樣本
	if m.hasStatus {
		snapshot.DriveStatus = m.lastStatus.Status
		snapshot.FreqCmd = m.lastStatus.FreqCmd
		snapshot.FreqAct = m.lastStatus.FreqAct
		snapshot.Amps = m.lastStatus.Amps
		snapshot.Fault = m.lastStatus.Fault
	}

	return snapshot
}

// handleMetrics 處理 /metrics 請求
func (m *MetricsCollector) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := m.Snapshot()

	// 檢查 Accept header
	accept := r.Header.Get("Accept")
	if accept == "application/json" || r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
		return
	}

	// Prometheus 格式
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	fmt.Fprintf(w, "# HELP vfdhmi_uptime_seconds Uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE vfdhmi_uptime_seconds gauge\n")
	fmt.Fprintf(w, "vfdhmi_uptime_seconds %f\n\n", time.Since(m.startTime).Seconds())

	fmt.Fprintf(w, "# HELP vfdhmi_transactions_total Total number of Modbus transactions\n")
	fmt.Fprintf(w, "# TYPE vfdhmi_transactions_total counter\n")
	fmt.Fprintf(w, "vfdhmi_transactions_total %d\n\n", snapshot.TotalTransactions)

	fmt.Fprintf(w, "# HELP vfdhmi_comm_errors_total Total number of communication failures\n")
	fmt.Fprintf(w, "# TYPE vfdhmi_comm_errors_total counter\n")
	fmt.Fprintf(w, "vfdhmi_comm_errors_total %d\n\n", snapshot.TotalErrors)

	fmt.Fprintf(w, "# HELP vfdhmi_transactions_per_second Modbus transactions per second\n")
	fmt.Fprintf(w, "# TYPE vfdhmi_transactions_per_second gauge\n")
	fmt.Fprintf(w, "vfdhmi_transactions_per_second %f\n\n", snapshot.TransactionsPerSec)

	fmt.Fprintf(w, "# HELP vfdhmi_comm_up Whether the last snapshot reached the drive\n")
	fmt.Fprintf(w, "# TYPE vfdhmi_comm_up gauge\n")
	commUp := 0
	if snapshot.DriveStatus != "" && snapshot.DriveStatus != StatusNoComm {
		commUp = 1
	}
	fmt.Fprintf(w, "vfdhmi_comm_up %d\n\n", commUp)

	if snapshot.FreqCmd != nil {
		fmt.Fprintf(w, "# HELP vfdhmi_freq_cmd_hz Commanded frequency in Hz\n")
		fmt.Fprintf(w, "# TYPE vfdhmi_freq_cmd_hz gauge\n")
		fmt.Fprintf(w, "vfdhmi_freq_cmd_hz %f\n\n", *snapshot.FreqCmd)
	}

	if snapshot.FreqAct != nil {
		fmt.Fprintf(w, "# HELP vfdhmi_freq_act_hz Actual output frequency in Hz\n")
		fmt.Fprintf(w, "# TYPE vfdhmi_freq_act_hz gauge\n")
		fmt.Fprintf(w, "vfdhmi_freq_act_hz %f\n\n", *snapshot.FreqAct)
	}

	if snapshot.Amps != nil {
		fmt.Fprintf(w, "# HELP vfdhmi_current_amps Output current in amperes\n")
		fmt.Fprintf(w, "# TYPE vfdhmi_current_amps gauge\n")
		fmt.Fprintf(w, "vfdhmi_current_amps %f\n\n", *snapshot.Amps)
	}

	if snapshot.Fault != nil {
		fmt.Fprintf(w, "# HELP vfdhmi_fault_code Device fault code (0 = no fault)\n")
		fmt.Fprintf(w, "# TYPE vfdhmi_fault_code gauge\n")
		fmt.Fprintf(w, "vfdhmi_fault_code %d\n", *snapshot.Fault)
	}
}
