package config

import "github.com/tokmz/qigate/pkg/errors"

var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(3001, "config: file not found")
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(3003, "config: read failed")
	// ErrInvalidSettings 配置内容不合法
	ErrInvalidSettings = errors.New(3004, "config: invalid settings")
)
