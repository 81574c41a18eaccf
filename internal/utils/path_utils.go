package utils

import (
	"os"
	"path/filepath"
)

const appDirName = "robodash"

// GetConfigDir 获取跨平台的配置目录
// Windows: %APPDATA%/robodash
// Linux/macOS: ~/.config/robodash
func GetConfigDir() (string, error) {
	// 检查是否设置了自定义配置目录
	if configHome := os.Getenv("ROBODASH_CONFIG_HOME"); configHome != "" {
		return configHome, nil
	}

	// Windows: 使用 APPDATA
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appDirName), nil
	}

	// Linux/macOS: 使用 XDG_CONFIG_HOME 或 ~/.config
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appDirName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", appDirName), nil
}

// GetDataPath 返回配置目录下的文件路径，例如日志和导出的历史
func GetDataPath(name string) (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// GetConfigPathForDisplay 获取用于显示的配置路径字符串
func GetConfigPathForDisplay() string {
	if configHome := os.Getenv("ROBODASH_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "config.yaml")
	}
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appDirName, "config.yaml") + " (Windows)"
	}
	return "~/.config/robodash/config.yaml (Linux/macOS)"
}
