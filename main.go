package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Apublisher/internal/captcha"
	"Apublisher/internal/config"
	"Apublisher/internal/credential"
	"Apublisher/internal/database"
	"Apublisher/internal/engine"
	"Apublisher/internal/platform/browser"
	"Apublisher/internal/ratelimit"
	"Apublisher/internal/scheduler"
	"Apublisher/internal/types"
	"Apublisher/internal/utils"
)

func main() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := utils.InitLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Open(config.GetDbPath())
	if err != nil {
		utils.Error(fmt.Sprintf("打开数据库失败: %v", err))
		os.Exit(1)
	}
	store := database.NewTaskStore(db)

	credStore := credential.NewStore(config.Config.CookiePath)

	var resolver *captcha.Resolver
	if config.Config.CaptchaAPIURL != "" && config.Config.CaptchaToken != "" {
		resolver = captcha.NewResolver(captcha.DefaultConfig(config.Config.CaptchaAPIURL, config.Config.CaptchaToken))
	} else {
		utils.Warn("未配置验证码识别服务，遇到验证码的任务会失败")
	}

	registry := browser.NewSessionRegistry(config.Config.SessionCleanupDelay)
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(config.Config.RateLimitPerUser))

	eng := engine.NewWithPlatforms(store, limiter, credStore, registry, resolver)
	eng.SetEventSink(func(event types.Event) {
		utils.Debug(fmt.Sprintf("事件: %s %+v", event.EventType(), event))
	})
	sched := scheduler.New(store, eng, config.Config.Workers)
	sched.Start()

	utils.Info("[+] 发布工作进程已启动")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	utils.Info(fmt.Sprintf("收到退出信号: %v", sig))

	sched.Stop()
	// 退出前强制回收所有存活的浏览器会话，避免无头浏览器进程残留
	registry.DrainAll()
	utils.Info("[+] 发布工作进程已退出")
}
