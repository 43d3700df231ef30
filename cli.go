package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile   string
	logger    *zap.Logger
	appConfig *Config
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "vfdhmi",
	Short: "變頻器 Modbus RTU 監控工具",
	Long: `透過 Modbus RTU 串列鏈路監控與操作單一變頻器 (VFD)，
以工程單位 (Hz / A / 運轉狀態) 呈現，而非原始暫存器值。`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 初始化日誌
		var err error
		logger, err = initLogger(nil)
		if err != nil {
			return fmt.Errorf("初始化日誌失敗: %w", err)
		}

		// 載入配置 (除了 version 和 help 命令)
		// 配置錯誤是致命的：直接中止啟動，不退回預設值
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "generate" {
			appConfig, err = LoadConfig(cfgFile)
			if err != nil {
				return err
			}

			logger, err = initLogger(&appConfig.Logging)
			if err != nil {
				return fmt.Errorf("初始化日誌失敗: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd 啟動 HMI 伺服器
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "啟動 HMI 伺服器",
	Long:  "啟動 HTTP HMI 伺服器，對外提供狀態查詢與驅動命令介面。",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 覆蓋 CLI 參數
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			appConfig.Server.Port = port
		}

		logger.Info("啟動 VFD HMI",
			zap.String("serial_port", appConfig.Serial.Port),
			zap.Uint8("unit_id", appConfig.Drive.UnitID),
			zap.Int("http_port", appConfig.Server.Port),
		)

		drive, session := buildDrive()
		server := NewHMIServer(appConfig, drive, logger)

		// 設置優雅關閉
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		// 啟動伺服器
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("啟動 HMI 伺服器失敗: %w", err)
		}

		// 啟動指標收集器
		if appConfig.Metrics.Enabled {
			metrics := NewMetricsCollector(session, logger)
			if err := metrics.Start(appConfig.Metrics.Endpoint, appConfig.Metrics.Port); err != nil {
				logger.Warn("啟動指標伺服器失敗", zap.Error(err))
			} else {
				server.SetMetrics(metrics)
				logger.Info("指標伺服器已啟動",
					zap.Int("port", appConfig.Metrics.Port),
					zap.String("endpoint", appConfig.Metrics.Endpoint),
				)
			}
		}

		// 等待信號
		sig := <-sigChan
		logger.Info("收到關閉信號", zap.String("signal", sig.String()))

		// 優雅關閉
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), appConfig.Server.GracefulTimeout)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error("關閉 HMI 伺服器失敗", zap.Error(err))
			return err
		}

		logger.Info("VFD HMI 已停止")
		return nil
	},
}

// statusCmd 狀態命令
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "讀取變頻器狀態",
	Long:  "讀取一次完整的變頻器狀態快照並輸出。",
	RunE: func(cmd *cobra.Command, args []string) error {
		drive, _ := buildDrive()
		snapshot := drive.Snapshot()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("序列化狀態失敗: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println(formatSnapshot(snapshot))
		return nil
	},
}

// startCmd 啟動變頻器
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "下達正轉運行命令",
	RunE:  runCommand(CommandStart),
}

// stopCmd 停止變頻器
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "下達減速停機命令",
	RunE:  runCommand(CommandStop),
}

// resetCmd 故障復位
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "下達故障復位命令",
	RunE:  runCommand(CommandReset),
}

// runCommand 建立命令執行函數
func runCommand(c Command) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		drive, _ := buildDrive()

		name := strings.ToUpper(c.String())
		if !drive.IssueCommand(c) {
			fmt.Printf("%s FAILED\n", name)
			return fmt.Errorf("命令寫入失敗: %s", c)
		}

		fmt.Printf("%s OK\n", name)
		return nil
	}
}

// setfreqCmd 設定頻率
var setfreqCmd = &cobra.Command{
	Use:   "setfreq <hz>",
	Short: "設定命令頻率",
	Long:  "設定命令頻率 (Hz)。超出可命令頻率帶的值會被夾限到上下限。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hz, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("無效的頻率: %q", args[0])
		}

		drive, _ := buildDrive()
		ok, effective, value := drive.SetFrequency(hz)
		if !ok {
			fmt.Println("Write failed")
			return fmt.Errorf("頻率寫入失敗")
		}

		fmt.Printf("Set %.2f Hz (cmd=%d)\n", effective, value)
		return nil
	},
}

// watchCmd 持續監看
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "持續監看變頻器狀態",
	Long:  "以固定間隔讀取狀態快照並輸出，直到收到中斷信號。",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")

		drive, _ := buildDrive()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fmt.Println(formatSnapshot(drive.Snapshot()))
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fmt.Println(formatSnapshot(drive.Snapshot()))
			}
		}
	},
}

// configCmd 配置命令組
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "配置管理命令",
	Long:  "管理配置檔。",
}

// configValidateCmd 驗證配置
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "驗證配置檔",
	Long:  "驗證指定的配置檔是否有效。",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}

		fmt.Println("配置驗證通過")
		fmt.Printf("  Serial: %s (%s)\n", cfg.Serial.Port, cfg.Serial.Transport)
		fmt.Printf("  Unit ID: %d\n", cfg.Drive.UnitID)
		fmt.Printf("  Limits: %.2f - %.2f Hz\n", cfg.Drive.LimitsHz.Min, cfg.Drive.LimitsHz.Max)
		fmt.Printf("  Base: %.2f Hz\n", cfg.Drive.BaseFreqHz)
		return nil
	},
}

// configGenerateCmd 生成配置
var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "生成範例配置",
	Long:  "生成範例配置檔。",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = "config.json"
		}

		cfg := DefaultConfig()

		if err := cfg.SaveConfig(output); err != nil {
			return fmt.Errorf("生成配置失敗: %w", err)
		}

		fmt.Printf("範例配置已生成: %s\n", output)
		return nil
	},
}

// versionCmd 版本命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "顯示版本資訊",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vfdhmi version %s\n", Version)
		fmt.Printf("  Build: %s\n", BuildTime)
		fmt.Printf("  Commit: %s\n", GitCommit)
	},
}

func init() {
	// 全域 flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置檔路徑")

	// serve 命令 flags
	serveCmd.Flags().IntP("port", "p", 0, "HTTP 監聽埠號")

	// status 命令 flags
	statusCmd.Flags().Bool("json", false, "以 JSON 格式輸出")

	// watch 命令 flags
	watchCmd.Flags().DurationP("interval", "i", 2*time.Second, "讀取間隔")

	// config 命令 flags
	configGenerateCmd.Flags().StringP("output", "o", "config.json", "輸出檔案路徑")

	// 組裝命令樹
	configCmd.AddCommand(configValidateCmd, configGenerateCmd)

	rootCmd.AddCommand(
		serveCmd,
		statusCmd,
		startCmd,
		stopCmd,
		resetCmd,
		setfreqCmd,
		watchCmd,
		configCmd,
		versionCmd,
	)
}

// buildDrive 依配置建立傳輸會話與驅動客戶端
func buildDrive() (*Drive, *TransportSession) {
	session := NewTransportSession(
		appConfig.Serial,
		appConfig.Drive.UnitID,
		WithTransportLogger(logger),
	)

	drive := NewDrive(
		appConfig.Drive,
		session,
		WithDriveLogger(logger),
	)

	return drive, session
}

// formatSnapshot 將狀態快照格式化為單行文字，缺席欄位顯示 "--"
func formatSnapshot(s DriveStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "status=%q", s.Status)

	if s.Fault != nil {
		fmt.Fprintf(&b, " fault=%d", *s.Fault)
	} else {
		b.WriteString(" fault=--")
	}

	if s.FreqCmd != nil {
		fmt.Fprintf(&b, " freq_cmd=%.2fHz", *s.FreqCmd)
	} else {
		b.WriteString(" freq_cmd=--")
	}

	if s.FreqAct != nil {
		fmt.Fprintf(&b, " freq_act=%.2fHz", *s.FreqAct)
	} else {
		b.WriteString(" freq_act=--")
	}

	if s.Amps != nil {
		fmt.Fprintf(&b, " amps=%.2fA", *s.Amps)
	} else {
		b.WriteString(" amps=--")
	}

	return b.String()
}

// initLogger 初始化日誌
// cfg 為 nil 時使用預設生產配置 (配置載入前的過渡期)。
func initLogger(cfg *LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	if cfg != nil {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("無效的日誌等級: %q", cfg.Level)
		}
		zapCfg.Level = level

		if cfg.Format == "console" {
			zapCfg.Encoding = "console"
		}

		if cfg.OutputPath != "" {
			zapCfg.OutputPaths = []string{cfg.OutputPath}
		}
	}

	return zapCfg.Build()
}

// Execute 執行 CLI
func Execute() error {
	return rootCmd.Execute()
}
