// Package config loads qigate settings from a file, the environment and
// built-in defaults, and reloads them when the file changes.
package config

import (
	stderrors "errors"
	"io/fs"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix 环境变量前缀，QIGATE_GATEWAY_TOKEN 对应 gateway.token
const DefaultEnvPrefix = "QIGATE"

// Loader 配置加载器
type Loader struct {
	viper *viper.Viper
	mu    sync.RWMutex

	configFile  string
	configName  string
	configType  string
	configPaths []string
	optional    bool

	autoWatch    bool
	watching     bool
	watchStarted bool
	onChange     func(*Settings)
	onError      func(error)

	defaults       map[string]any
	envPrefix      string
	envKeyReplacer *strings.Replacer
}

// New 创建加载器
func New(opts ...Option) *Loader {
	l := &Loader{
		viper:          viper.New(),
		defaults:       defaultValues(),
		envPrefix:      DefaultEnvPrefix,
		envKeyReplacer: strings.NewReplacer(".", "_"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load 读取配置并返回解析后的 Settings
func (l *Loader) Load() (*Settings, error) {
	l.mu.Lock()

	for k, v := range l.defaults {
		l.viper.SetDefault(k, v)
	}

	if l.envPrefix != "" {
		l.viper.SetEnvPrefix(l.envPrefix)
	}
	if l.envKeyReplacer != nil {
		l.viper.SetEnvKeyReplacer(l.envKeyReplacer)
	}
	l.viper.AutomaticEnv()

	if l.configFile != "" {
		l.viper.SetConfigFile(l.configFile)
	} else {
		if l.configName != "" {
			l.viper.SetConfigName(l.configName)
		}
		if l.configType != "" {
			l.viper.SetConfigType(l.configType)
		}
		for _, path := range l.configPaths {
			l.viper.AddConfigPath(path)
		}
	}

	hasFile := l.configFile != "" || l.configName != ""
	if hasFile {
		if err := l.viper.ReadInConfig(); err != nil {
			switch {
			case isNotFound(err) && l.optional:
				hasFile = false
			case isNotFound(err):
				l.mu.Unlock()
				return nil, ErrConfigNotFound.WithError(err)
			default:
				l.mu.Unlock()
				return nil, ErrConfigReadFailed.WithError(err)
			}
		}
	}

	settings, err := l.decode()
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}

	if l.autoWatch && hasFile {
		l.startWatch()
	}
	l.mu.Unlock()

	return settings, nil
}

// Settings 重新解析当前配置
func (l *Loader) Settings() (*Settings, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.decode()
}

// decode 调用方持有锁
func (l *Loader) decode() (*Settings, error) {
	settings := &Settings{}
	if err := l.viper.Unmarshal(settings); err != nil {
		return nil, ErrConfigReadFailed.WithError(err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Set 覆盖配置值（优先级高于文件和环境变量，用于命令行参数）
func (l *Loader) Set(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.viper.Set(key, value)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.viper.GetString(key)
}

// IsSet 检查配置键是否存在
func (l *Loader) IsSet(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.viper.IsSet(key)
}

// ConfigFileUsed 实际读取的配置文件
func (l *Loader) ConfigFileUsed() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.viper.ConfigFileUsed()
}

// Close 停止监控
func (l *Loader) Close() {
	l.StopWatch()
}

// Viper 底层 viper 实例，不受 Loader 的锁保护
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound) || stderrors.Is(err, fs.ErrNotExist)
}
