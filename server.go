package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ServerState 伺服器狀態
type ServerState int32

const (
	ServerStateStopped ServerState = iota
	ServerStateStarting
	ServerStateRunning
	ServerStateStopping
)

func (s ServerState) String() string {
	switch s {
	case ServerStateStopped:
		return "stopped"
	case ServerStateStarting:
		return "starting"
	case ServerStateRunning:
		return "running"
	case ServerStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// HMIServer 變頻器 HMI 伺服器
// 將 Drive 的操作以 HTTP JSON 介面對外暴露。
// HTTP 層只做輸入解析與結果序列化，不持有任何驅動語意。
type HMIServer struct {
	config *Config
	drive  *Drive

	state atomic.Int32

	httpServer *http.Server
	startTime  time.Time

	// 指標收集器 (可選)
	metrics *MetricsCollector

	logger *zap.Logger
}

// NewHMIServer 建立 HMI 伺服器
func NewHMIServer(config *Config, drive *Drive, logger *zap.Logger) *HMIServer {
	return &HMIServer{
		config: config,
		drive:  drive,
		logger: logger,
	}
}

// SetMetrics 掛載指標收集器
func (s *HMIServer) SetMetrics(m *MetricsCollector) {
	s.metrics = m
}

// Start 啟動伺服器
func (s *HMIServer) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(ServerStateStopped), int32(ServerStateStarting)) {
		return fmt.Errorf("伺服器已經在運行中")
	}

	s.startTime = time.Now()
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.logger.Info("正在啟動 HMI 伺服器",
		zap.String("addr", addr),
		zap.Uint8("unit_id", s.config.Drive.UnitID),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HMI 伺服器錯誤", zap.Error(err))
		}
	}()

	s.state.Store(int32(ServerStateRunning))
	s.logger.Info("HMI 伺服器啟動完成")

	return nil
}

// Stop 停止伺服器
func (s *HMIServer) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(ServerStateRunning), int32(ServerStateStopping)) {
		return nil // 已經停止
	}

	s.logger.Info("正在停止 HMI 伺服器")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.state.Store(int32(ServerStateStopped))
			return fmt.Errorf("關閉 HMI 伺服器失敗: %w", err)
		}
	}

	s.state.Store(int32(ServerStateStopped))
	s.logger.Info("HMI 伺服器已停止",
		zap.Duration("uptime", time.Since(s.startTime)),
	)

	return nil
}

// State 取得當前狀態
func (s *HMIServer) State() ServerState {
	return ServerState(s.state.Load())
}

// routes 建立路由表
func (s *HMIServer) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/start", s.handleCommand(CommandStart))
	mux.HandleFunc("/api/stop", s.handleCommand(CommandStop))
	mux.HandleFunc("/api/reset", s.handleCommand(CommandReset))
	mux.HandleFunc("/api/setfreq", s.handleSetFreq)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	return mux
}

// handleStatus 處理狀態查詢 (GET /api/status)
// 缺席欄位序列化為 null。
func (s *HMIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := s.drive.Snapshot()
	if s.metrics != nil {
		s.metrics.RecordSnapshot(status)
	}

	s.writeJSON(w, http.StatusOK, status)
}

// handleConfig 處理顯示配置查詢 (GET /api/config)
// 前端只需要頻率帶與額定電流，不暴露串列參數。
func (s *HMIServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"min_hz":          s.config.Drive.LimitsHz.Min,
		"max_hz":          s.config.Drive.LimitsHz.Max,
		"base_freq_hz":    s.config.Drive.BaseFreqHz,
		"rated_current_a": s.config.Drive.RatedCurrentA,
	})
}

// handleCommand 處理命令請求 (POST /api/start|stop|reset)
func (s *HMIServer) handleCommand(cmd Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		ok := s.drive.IssueCommand(cmd)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      ok,
			"command": cmd.String(),
		})
	}
}

// handleSetFreq 處理頻率設定請求 (POST /api/setfreq)
// 接受表單欄位 freq 或 JSON {"freq": ...}；
// 解析失敗在觸及核心之前就以 400 拒絕。
func (s *HMIServer) handleSetFreq(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	hz, err := parseFreqRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid frequency")
		return
	}

	ok, effective, value := s.drive.SetFrequency(hz)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    ok,
		"hz":    effective,
		"value": value,
	})
}

// handleHealth 處理 /health 請求
func (s *HMIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady 處理 /ready 請求
func (s *HMIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.State() != ServerStateRunning {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// parseFreqRequest 從表單或 JSON 內文解析頻率
func parseFreqRequest(r *http.Request) (float64, error) {
	if err := r.ParseForm(); err == nil {
		if v := r.PostFormValue("freq"); v != "" {
			return strconv.ParseFloat(v, 64)
		}
	}

	var body struct {
		Freq *float64 `json:"freq"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("解析頻率失敗: %w", err)
	}
	if body.Freq == nil {
		return 0, fmt.Errorf("缺少 freq 欄位")
	}
	return *body.Freq, nil
}

// writeJSON 輸出 JSON 回應
func (s *HMIServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("序列化回應失敗", zap.Error(err))
	}
}

// writeError 輸出錯誤回應
func (s *HMIServer) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
