// Package version 构建版本信息
package version

import (
	"fmt"
	"runtime"
	"time"
)

// 构建时注入的变量，通过ldflags设置：
//
//	-X github.com/weisyn/flowcontrol/internal/app/version.Version=v1.2.3
var (
	Version   = "dev"     // 语义化版本，如v1.2.3
	GitCommit = "unknown" // 提交哈希
	BuildTime = "unknown" // 构建时间戳（RFC3339格式）
)

// BuildInfo 完整构建信息结构
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`

	// 运行时信息
	GoVersion string `json:"go_version"`
	GoArch    string `json:"go_arch"`
	GoOS      string `json:"go_os"`
}

// GetBuildInfo 获取完整构建信息
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		GoArch:    runtime.GOARCH,
		GoOS:      runtime.GOOS,
	}
}

// String 单行版本描述
func (b *BuildInfo) String() string {
	s := fmt.Sprintf("flowctl %s (commit %s, %s %s/%s)", b.Version, b.GitCommit, b.GoVersion, b.GoOS, b.GoArch)
	if b.BuildTime == "unknown" {
		return s
	}
	if t, err := time.Parse(time.RFC3339, b.BuildTime); err == nil {
		return s + ", built " + t.UTC().Format("2006-01-02 15:04:05 MST")
	}
	return s + ", built " + b.BuildTime
}
