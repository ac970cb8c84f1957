// Package configs 内置的环境配置
package configs

import (
	_ "embed"
	"sort"
)

// 嵌入各环境的配置文件（在configs目录内直接引用）
//
//go:embed development/config.json
var developmentConfig []byte

//go:embed production/config.json
var productionConfig []byte

var embedded = map[string][]byte{
	"development": developmentConfig,
	"production":  productionConfig,
}

// Get 按环境名取内置配置
func Get(env string) ([]byte, bool) {
	data, ok := embedded[env]
	return data, ok
}

// Environments 内置配置的环境名
func Environments() []string {
	envs := make([]string, 0, len(embedded))
	for env := range embedded {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	return envs
}
