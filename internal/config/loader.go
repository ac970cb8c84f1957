package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/weisyn/flowcontrol/pkg/types"
)

// EnvConfigPath 覆盖配置文件路径的环境变量
const EnvConfigPath = "FLOWCONTROL_CONFIG_PATH"

// ErrConfigNotFound 配置文件不存在
var ErrConfigNotFound = errors.New("config file not found")

// ResolvePath 确定配置文件路径：环境变量优先
func ResolvePath(path string) string {
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return path
}

// Load 读取并解析 JSON 配置文件
//
// 未知字段视为错误，避免拼错的配置项被静默忽略。
func Load(path string) (*types.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 JSON 配置内容
func Parse(data []byte) (*types.AppConfig, error) {
	var appConfig types.AppConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&appConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &appConfig, nil
}
