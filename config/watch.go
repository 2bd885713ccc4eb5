package config

import (
	"os"

	"JamFM/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// WatchEnv 监听 .env 文件变更，变更时回调新的日志级别。
// 只支持热加载 LOG_LEVEL，其余配置需要重启生效。
func WatchEnv(onLogLevel func(level string)) (*fsnotify.Watcher, error) {
	if _, err := os.Stat(".env"); err != nil {
		// 没有 .env 文件就没什么可监听的
		return nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add("."); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != ".env" && event.Name != "./.env" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				env, err := godotenv.Read(".env")
				if err != nil {
					logger.Warn("重新读取 .env 失败", logger.ErrorField(err))
					continue
				}
				if level, ok := env["LOG_LEVEL"]; ok && level != "" {
					onLogLevel(level)
					logger.Info("日志级别已热更新", logger.String("level", level))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置文件监听错误", logger.ErrorField(err))
			}
		}
	}()

	return watcher, nil
}
