package config

import "strings"

// Option 加载器选项
type Option func(*Loader)

// WithConfigFile 指定配置文件完整路径
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.configFile = path
	}
}

// WithConfigName 设置配置文件名（不含扩展名）
func WithConfigName(name string) Option {
	return func(l *Loader) {
		l.configName = name
	}
}

// WithConfigType 设置配置文件类型（yaml/json/toml）
func WithConfigType(typ string) Option {
	return func(l *Loader) {
		l.configType = typ
	}
}

// WithConfigPaths 设置配置文件搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithOptional 找不到配置文件时只使用默认值和环境变量
func WithOptional(optional bool) Option {
	return func(l *Loader) {
		l.optional = optional
	}
}

// WithAutoWatch 加载后自动监控配置文件
func WithAutoWatch(watch bool) Option {
	return func(l *Loader) {
		l.autoWatch = watch
	}
}

// WithOnChange 配置文件变更并解析成功后回调
func WithOnChange(fn func(*Settings)) Option {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// WithOnError 监控过程中解析失败时回调
func WithOnError(fn func(error)) Option {
	return func(l *Loader) {
		l.onError = fn
	}
}

// WithDefaults 追加默认值，覆盖内置默认值
func WithDefaults(defaults map[string]any) Option {
	return func(l *Loader) {
		for k, v := range defaults {
			l.defaults[k] = v
		}
	}
}

// WithEnvPrefix 设置环境变量前缀（默认 QIGATE）
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithEnvKeyReplacer 设置环境变量键名替换器（默认 "." -> "_"）
func WithEnvKeyReplacer(r *strings.Replacer) Option {
	return func(l *Loader) {
		l.envKeyReplacer = r
	}
}
