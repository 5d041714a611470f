/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mautops/analytics-gin/internal/api"
	"github.com/mautops/analytics-gin/internal/config"
	"github.com/mautops/analytics-gin/internal/container"
	"github.com/mautops/analytics-gin/internal/metrics"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Analytics Gin API server.
The server will listen on the configured host and port,
serve analytics query endpoints backed by the events table,
and run the async job scheduler in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 初始化容器
		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 3. 启动异步任务处理器(调度循环 + worker 池)
		ctr.JobProcessor().Start()
		defer ctr.JobProcessor().Stop()

		// 启动指标收集器(定期采样数据库连接池状态)
		collector := metrics.NewCollector(ctr.DB(), 15*time.Second)
		collector.Start()
		defer collector.Stop()

		// 4. 监听配置文件变更,支持日志级别热更新
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath)
			watcher.OnConfigChange(func(newCfg *config.Config) {
				api.SetLogLevel(newCfg.Log.Level)
			})
			if err := watcher.Start(); err != nil {
				log.Printf("Config watcher disabled: %v", err)
			} else {
				defer watcher.Stop()
			}
		}

		// 5. 设置路由
		router := api.SetupRouter(ctr.DB(), ctr.RedisClient(), ctr.QueryService(), ctr.JobService(), cfg)

		// 6. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		// 启动服务器(在 goroutine 中)
		go func() {
			log.Printf("Server starting on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down server...")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		log.Println("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}

// LoadConfig 加载配置
func LoadConfig(configPath string) (*config.Config, error) {
	return config.Load(configPath)
}
