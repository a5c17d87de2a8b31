package config

import "time"

// Configuration 只读配置视图，路径用 "." 分隔
type Configuration interface {
	Get(path string) interface{}
	IsExists(path string) bool

	GetString(path string) string
	GetStringWithDefault(path, defaultValue string) string
	GetInt(path string) int
	GetIntWithDefault(path string, defaultValue int) int
	GetLong(path string) int64
	GetLongWithDefault(path string, defaultValue int64) int64
	GetBool(path string) bool
	GetBoolWithDefault(path string, defaultValue bool) bool
	GetDurationWithDefault(path string, defaultValue time.Duration) time.Duration

	// 子树不存在时返回空配置
	GetConfiguration(path string) Configuration
}
