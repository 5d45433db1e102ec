package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config 应用程序配置
type Config struct {
	Wire WireConfig `json:"wire"`
	Log  LogConfig  `json:"log"`
}

// WireConfig 协议收发层配置
type WireConfig struct {
	BufferSize       int           `json:"buffer_size"`
	MaxPacketSize    int           `json:"max_packet_size"`
	Compression      string        `json:"compression"` // none / zlib / zstd
	CompressionLevel int           `json:"compression_level"`
	ReadTimeout      time.Duration `json:"read_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level        string `json:"level"`
	TracePackets bool   `json:"trace_packets"`
}

func DefaultConfig() *Config {
	return &Config{
		Wire: WireConfig{
			BufferSize:       16 * 1024,
			MaxPacketSize:    0xffffff,
			Compression:      "none",
			CompressionLevel: 6,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
		},
		Log: LogConfig{
			Level:        "info",
			TracePackets: false,
		},
	}
}

func LoadConfig(configPath string) (*Config, error) {
	// 如果没有指定配置文件，使用默认配置
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// 检查配置文件是否存在
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	// 读取配置文件
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 验证配置
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func LoadConfigOrDefault() *Config {
	// 尝试的配置文件路径
	possiblePaths := []string{
		"config.json",
		"./config/config.json",
		"/etc/mysqlwire/config.json",
	}

	// 尝试从环境变量获取配置文件路径
	if envPath := os.Getenv("MYSQLWIRE_CONFIG"); envPath != "" {
		if config, err := LoadConfig(envPath); err == nil {
			return config
		}
	}

	// 尝试从常见位置加载
	for _, path := range possiblePaths {
		if absPath, err := filepath.Abs(path); err == nil {
			if config, err := LoadConfig(absPath); err == nil {
				return config
			}
		}
	}

	// 使用默认配置
	return DefaultConfig()
}

func validateConfig(config *Config) error {
	if config.Wire.BufferSize < 4 {
		return fmt.Errorf("缓冲区至少要放得下一个包头: %d", config.Wire.BufferSize)
	}

	if config.Wire.MaxPacketSize < 1 || config.Wire.MaxPacketSize > 0xffffff {
		return fmt.Errorf("无效的单包上限: %d", config.Wire.MaxPacketSize)
	}

	switch config.Wire.Compression {
	case "none", "zlib", "zstd":
	default:
		return fmt.Errorf("不支持的压缩算法: %s", config.Wire.Compression)
	}

	if config.Wire.CompressionLevel < -2 || config.Wire.CompressionLevel > 9 {
		return fmt.Errorf("无效的压缩级别: %d", config.Wire.CompressionLevel)
	}

	if config.Wire.ReadTimeout < 0 || config.Wire.WriteTimeout < 0 {
		return fmt.Errorf("超时时间不能为负数")
	}

	return nil
}
