package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// 傳輸模式
const (
	TransportRTU = "rtu"
	TransportTCP = "tcp"
)

// Config 全域配置
type Config struct {
	Serial  SerialConfig  `json:"serial" mapstructure:"serial"`
	Drive   DriveConfig   `json:"drive" mapstructure:"drive"`
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// SerialConfig 串列鏈路配置
// Transport 為 "rtu" 時 Port 是串列埠路徑，為 "tcp" 時是 host:port
// (tcp 模式供測試台與整合測試使用)。
type SerialConfig struct {
	Transport string        `json:"transport" mapstructure:"transport"`
	Port      string        `json:"port" mapstructure:"port"`
	BaudRate  int           `json:"baud_rate" mapstructure:"baud_rate"`
	Parity    string        `json:"parity" mapstructure:"parity"`
	StopBits  int           `json:"stop_bits" mapstructure:"stop_bits"`
	DataBits  int           `json:"data_bits" mapstructure:"data_bits"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DriveConfig 變頻器配置 (啟動時載入一次，之後唯讀)
type DriveConfig struct {
	UnitID        uint8           `json:"unit_id" mapstructure:"unit_id"`
	Registers     RegisterConfig  `json:"regs" mapstructure:"regs"`
	LimitsHz      FrequencyLimits `json:"limits_hz" mapstructure:"limits_hz"`
	BaseFreqHz    float64         `json:"base_freq_hz" mapstructure:"base_freq_hz"`
	RatedCurrentA float64         `json:"rated_current_a" mapstructure:"rated_current_a"`
}

// RegisterConfig 邏輯名稱到暫存器位址的映射
type RegisterConfig struct {
	FreqSet   uint16 `json:"freq_set" mapstructure:"freq_set"`
	FreqFb    uint16 `json:"freq_fb" mapstructure:"freq_fb"`
	CurrentFb uint16 `json:"current_fb" mapstructure:"current_fb"`
	Status    uint16 `json:"status" mapstructure:"status"`
	Fault     uint16 `json:"fault" mapstructure:"fault"`
	Command   uint16 `json:"cmd" mapstructure:"cmd"`
}

// FrequencyLimits 可命令頻率帶
type FrequencyLimits struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// ServerConfig HMI 伺服器配置
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `json:"graceful_timeout" mapstructure:"graceful_timeout"`
}

// LoggingConfig 日誌配置
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	OutputPath string `json:"output_path" mapstructure:"output_path"`
}

// MetricsConfig 指標配置
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	Port     int    `json:"port" mapstructure:"port"`
}

// DefaultConfig 返回預設配置
// 暫存器預設位址對應常見中文變頻器的通訊協議佈局。
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Transport: TransportRTU,
			Port:      "/dev/ttyUSB0",
			BaudRate:  9600,
			Parity:    "N",
			StopBits:  1,
			DataBits:  8,
			Timeout:   1 * time.Second,
		},
		Drive: DriveConfig{
			UnitID: 1,
			Registers: RegisterConfig{
				FreqSet:   0x2001,
				FreqFb:    0x3001,
				CurrentFb: 0x3004,
				Status:    0x2100,
				Fault:     0x2101,
				Command:   0x2000,
			},
			LimitsHz:      FrequencyLimits{Min: 25.0, Max: 50.0},
			BaseFreqHz:    50.0,
			RatedCurrentA: 10.0,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
			Port:     9090,
		},
	}
}

// LoadConfig 載入配置檔
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("json")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/vfdhmi/")
		viper.AddConfigPath("$HOME/.vfdhmi/")
	}

	// 環境變數覆蓋
	viper.SetEnvPrefix("VFDHMI")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		// 配置檔不存在，使用預設值
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置驗證失敗: %w", err)
	}

	return cfg, nil
}

// Validate 驗證配置
// 配置錯誤屬於致命錯誤，必須在啟動階段擋下。
func (c *Config) Validate() error {
	switch c.Serial.Transport {
	case TransportRTU, TransportTCP:
	default:
		return fmt.Errorf("無效的傳輸模式: %q (僅支援 rtu / tcp)", c.Serial.Transport)
	}

	if c.Serial.Port == "" {
		return fmt.Errorf("必須指定串列埠")
	}

	if c.Serial.Transport == TransportRTU {
		if c.Serial.BaudRate <= 0 {
			return fmt.Errorf("無效的鮑率: %d", c.Serial.BaudRate)
		}
		switch c.Serial.Parity {
		case "N", "E", "O":
		default:
			return fmt.Errorf("無效的同位檢查: %q (僅支援 N / E / O)", c.Serial.Parity)
		}
		if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
			return fmt.Errorf("無效的停止位元: %d", c.Serial.StopBits)
		}
		if c.Serial.DataBits != 7 && c.Serial.DataBits != 8 {
			return fmt.Errorf("無效的資料位元: %d", c.Serial.DataBits)
		}
	}

	if c.Serial.Timeout <= 0 {
		return fmt.Errorf("交易超時必須大於 0")
	}

	if c.Drive.UnitID == 0 {
		return fmt.Errorf("無效的裝置位址: %d", c.Drive.UnitID)
	}

	if c.Drive.LimitsHz.Min > c.Drive.LimitsHz.Max {
		return fmt.Errorf("頻率下限 %.2f 大於上限 %.2f", c.Drive.LimitsHz.Min, c.Drive.LimitsHz.Max)
	}

	if c.Drive.BaseFreqHz <= 0 {
		return fmt.Errorf("基準頻率必須大於 0: %.2f", c.Drive.BaseFreqHz)
	}

	if c.Drive.RatedCurrentA < 0 {
		return fmt.Errorf("額定電流不可為負: %.2f", c.Drive.RatedCurrentA)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無效的埠號: %d", c.Server.Port)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("無效的指標埠號: %d", c.Metrics.Port)
	}

	return nil
}

// SaveConfig 儲存配置到檔案
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失敗: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("寫入配置檔失敗: %w", err)
	}

	return nil
}
