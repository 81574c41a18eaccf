package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"github.com/Zacy-Sokach/RoboDash/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL = "http://localhost:8080/api/v1"
	configFileName = "config.yaml"
)

type Config struct {
	APIKey  string      `yaml:"api_key"`
	BaseURL string      `yaml:"base_url"`
	Models  []string    `yaml:"models"`
	Robot   RobotConfig `yaml:"robot"`
	Log     LogConfig   `yaml:"log"`
	Retry   RetryConfig `yaml:"retry"`
}

// RobotConfig 机器人状态引擎的时间参数（毫秒）
type RobotConfig struct {
	DebounceMS  int `yaml:"debounce_ms"`
	MinStateMS  int `yaml:"min_state_ms"`
	TalkingMS   int `yaml:"talking_ms"`
	HistorySize int `yaml:"history_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type RetryConfig struct {
	MaxRetries     int `yaml:"max_retries"`
	InitialDelayMS int `yaml:"initial_delay_ms"`
	MaxDelayMS     int `yaml:"max_delay_ms"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Models: []string{
			"anthropic.claude-3-haiku-20240307-v1:0",
			"amazon.titan-text-express-v1",
		},
		Robot: DefaultRobotConfig(),
		Log:   LogConfig{Level: "info"},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialDelayMS: 1000,
			MaxDelayMS:     30000,
		},
	}
}

func DefaultRobotConfig() RobotConfig {
	t := robot.DefaultTimings()
	return RobotConfig{
		DebounceMS:  int(t.Debounce / time.Millisecond),
		MinStateMS:  int(t.MinStateDuration / time.Millisecond),
		TalkingMS:   int(t.TalkingDuration / time.Millisecond),
		HistorySize: t.HistorySize,
	}
}

// Timings 转换为引擎使用的时间参数
func (c RobotConfig) Timings() robot.Timings {
	return robot.Timings{
		Debounce:         time.Duration(c.DebounceMS) * time.Millisecond,
		MinStateDuration: time.Duration(c.MinStateMS) * time.Millisecond,
		TalkingDuration:  time.Duration(c.TalkingMS) * time.Millisecond,
		HistorySize:      c.HistorySize,
	}
}

// RetryPolicy 转换为 HTTP 重试配置
func (c RetryConfig) RetryPolicy() *utils.RetryConfig {
	policy := utils.DefaultRetryConfig()
	if c.MaxRetries > 0 {
		policy.MaxRetries = c.MaxRetries
	}
	if c.InitialDelayMS > 0 {
		policy.InitialDelay = time.Duration(c.InitialDelayMS) * time.Millisecond
	}
	if c.MaxDelayMS > 0 {
		policy.MaxDelay = time.Duration(c.MaxDelayMS) * time.Millisecond
	}
	return policy
}

func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile 从指定路径加载配置，文件不存在时返回默认配置
func LoadFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := Default()
		applyEnv(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	fillDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if len(cfg.Models) == 0 {
		cfg.Models = def.Models
	}
	// 负数视为未配置；0 是合法值（关闭防抖或最短停留）
	if cfg.Robot.DebounceMS < 0 {
		cfg.Robot.DebounceMS = def.Robot.DebounceMS
	}
	if cfg.Robot.MinStateMS < 0 {
		cfg.Robot.MinStateMS = def.Robot.MinStateMS
	}
	if cfg.Robot.TalkingMS <= 0 {
		cfg.Robot.TalkingMS = def.Robot.TalkingMS
	}
	if cfg.Robot.HistorySize <= 0 {
		cfg.Robot.HistorySize = def.Robot.HistorySize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("ROBODASH_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if url := os.Getenv("ROBODASH_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
}

func SaveConfig(config *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(configPath, config)
}

// SaveFile 写入指定路径
func SaveFile(configPath string, config *Config) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// GetConfigPath 返回配置文件路径
func GetConfigPath() (string, error) {
	configDir, err := utils.GetConfigDir()
	if err != nil {
		return "", fmt.Errorf("获取配置目录失败: %w", err)
	}
	return filepath.Join(configDir, configFileName), nil
}
