package config

import (
	"github.com/fsnotify/fsnotify"
)

// startWatch 调用方持有锁
func (l *Loader) startWatch() {
	l.watching = true
	if l.watchStarted {
		return
	}
	l.watchStarted = true

	l.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		l.mu.RLock()
		watching := l.watching
		onChange := l.onChange
		settings, err := l.decode()
		l.mu.RUnlock()

		if !watching {
			return
		}
		if err != nil {
			l.reportError(err)
			return
		}
		if onChange != nil {
			onChange(settings)
		}
	})
	l.viper.WatchConfig()
}

// StartWatch 开始监控配置文件，重复调用无副作用
func (l *Loader) StartWatch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startWatch()
}

// StopWatch 停止回调
//
// viper 不能停止底层 fsnotify watcher，这里只让回调失效。
func (l *Loader) StopWatch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watching = false
}

// IsWatching 是否正在监控
func (l *Loader) IsWatching() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.watching
}

func (l *Loader) reportError(err error) {
	l.mu.RLock()
	fn := l.onError
	l.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
