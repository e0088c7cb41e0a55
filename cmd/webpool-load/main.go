// Package main is a load generator for the webpool demo server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webpool/internal/client"
	"webpool/internal/logger"
)

func main() {
	config := client.DefaultConfig()

	var (
		requests = flag.Int("n", 100, "送信するリクエスト数")
		logLevel = flag.String("log-level", "info", "ログレベル (debug, info, warn, error)")
	)
	flag.StringVar(&config.Addr, "addr", config.Addr, "対象サーバーのアドレス")
	flag.IntVar(&config.NumWorkers, "c", config.NumWorkers, "同時接続数")
	flag.Float64Var(&config.SleepRatio, "sleep-ratio", config.SleepRatio, "GET /sleep の比率 (0.0〜1.0)")
	flag.Float64Var(&config.MissRatio, "miss-ratio", config.MissRatio, "404 になるリクエストの比率 (0.0〜1.0)")
	flag.DurationVar(&config.DialTimeout, "timeout", config.DialTimeout, "1リクエストのタイムアウト")
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}
	logger.Default.SetLevel(level)

	if config.SleepRatio < 0 || config.MissRatio < 0 || config.SleepRatio+config.MissRatio > 1 {
		logger.Error("", "設定エラー: sleep-ratio + miss-ratio must be within 0..1")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\n中断シグナルを受信、投入を停止中...")
		cancel()
	}()

	start := time.Now()
	result, err := client.New(config, logger.Default).RunRequests(ctx, *requests)
	if err != nil {
		logger.Error("", "実行エラー: %v", err)
		os.Exit(1)
	}

	fmt.Println(result.Report())
	logger.Info("", "Done in %v", time.Since(start))
}
