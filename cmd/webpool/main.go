// Package main is the entry point for webpool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"webpool/internal/api"
	"webpool/internal/config"
	"webpool/internal/events"
	"webpool/internal/httpdemo"
	"webpool/internal/logger"
	"webpool/internal/metrics"
	"webpool/internal/worker"
)

var (
	version = "dev"
)

// options はコマンドラインフラグの値
type options struct {
	configFile string
	addr       string
	workers    int
	contentDir string
	sleep      time.Duration
	maxConns   int
	admin      bool
	adminAddr  string
	logLevel   string
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.StringVar(&opts.addr, "addr", "", "待ち受けアドレス (例: 127.0.0.1:7878)")
	flag.IntVar(&opts.workers, "workers", 0, "ワーカー数")
	flag.StringVar(&opts.contentDir, "content", "", "HTMLファイルのディレクトリ")
	flag.DurationVar(&opts.sleep, "sleep", 0, "GET /sleep の遅延 (例: 5s)")
	flag.IntVar(&opts.maxConns, "max-conns", 0, "N 件の接続を処理したら終了 (0 で無制限)")
	flag.BoolVar(&opts.admin, "admin", false, "管理APIサーバーを起動")
	flag.StringVar(&opts.adminAddr, "admin-addr", "", "管理APIのアドレス (例: 127.0.0.1:9090)")
	flag.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "バージョンを表示")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `webpool - thread pool backed demo web server

Usage:
  webpool [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # デフォルト設定 (127.0.0.1:7878, 4 workers)
  webpool

  # 設定ファイルから起動
  webpool --config webpool.yaml

  # 2 接続だけ処理して終了
  webpool --max-conns 2

  # 管理API (/api/status, /metrics, /ws) を有効化
  webpool --admin --admin-addr :9090
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("webpool version %s\n", version)
		return
	}

	settings, err := buildSettings(opts, explicitFlags())
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}

	if err := run(settings); err != nil {
		logger.Error("", "実行エラー: %v", err)
		os.Exit(1)
	}
}

// explicitFlags はコマンドラインで明示的に指定されたフラグ名を返す
func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// buildSettings は設定を構築する。優先順位: フラグ > 設定ファイル > デフォルト
func buildSettings(opts options, set map[string]bool) (config.Settings, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		fileConfig, err := config.LoadFile(opts.configFile)
		if err != nil {
			return config.Settings{}, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		cfg = fileConfig
	}

	if set["addr"] {
		cfg.Server.Addr = opts.addr
	}
	if set["workers"] {
		cfg.Pool.Workers = opts.workers
	}
	if set["content"] {
		cfg.Server.ContentDir = opts.contentDir
	}
	if set["sleep"] {
		cfg.Server.SleepDelay = opts.sleep.String()
	}
	if set["max-conns"] {
		cfg.Server.MaxConnections = opts.maxConns
	}
	if set["admin"] {
		cfg.Admin.Enabled = opts.admin
	}
	if set["admin-addr"] {
		cfg.Admin.Addr = opts.adminAddr
	}
	if set["log-level"] {
		cfg.Log.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Settings{}, fmt.Errorf("設定検証エラー: %w", err)
	}
	return cfg.ToSettings()
}

// run はプールとサーバーを起動し、終了シグナルまたは接続上限まで動かす
func run(s config.Settings) error {
	logger.Default.SetLevel(s.LogLevel)

	fmt.Println("webpool - thread pool backed demo web server")
	fmt.Println("============================================")
	fmt.Printf("Listen: %s, Workers: %d\n", s.Addr, s.Workers)
	fmt.Printf("Content: %s, Sleep: %v\n", s.ContentDir, s.SleepDelay)
	fmt.Println("============================================")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n中断シグナルを受信、サーバーを終了中...")
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewWithConfig(reg, metrics.DefaultConfig())
	bus := events.NewBus()
	defer bus.Close()

	pool := worker.New(s.Workers,
		worker.WithObserver(m),
		worker.WithEventBus(bus),
	)

	var adminWG sync.WaitGroup
	if s.AdminEnabled {
		adminServer := api.NewServer(s.AdminAddr, pool, m, reg, bus)
		adminWG.Add(1)
		go func() {
			defer adminWG.Done()
			if err := adminServer.Start(ctx); err != nil {
				logger.Error("", "Admin server error: %v", err)
			}
		}()
	}

	srv := httpdemo.NewServer(httpdemo.Config{
		Addr:           s.Addr,
		ContentDir:     s.ContentDir,
		SleepDelay:     s.SleepDelay,
		MaxConnections: s.MaxConnections,
	}, pool, logger.Default)

	serveErr := srv.ListenAndServe(ctx)

	// 受付停止後にプールを停止する。キュー内の接続は全て処理される
	closeErr := pool.Close()

	cancel()
	adminWG.Wait()

	snap := m.Snapshot()
	logger.Info("", "Jobs: submitted=%d completed=%d panicked=%d, avg=%v p99=%v",
		snap.Submitted, snap.Completed, snap.Panicked, snap.AverageDuration, snap.P99Duration)
	logger.Info("", "Goodbye!")

	return errors.Join(serveErr, closeErr)
}
