// 手动修复测验缓存的总分（total_points）
//
// 题目增删改时总分会在同一事务内更新；此脚本用于直接改库或导入数据之后做一次全量校正。
// 线上也可以调用 POST /api/admin/quiz-totals/recompute。
//
// 用法: go run scripts/recompute_totals.go [configs/config.yaml]

package main

import (
	"context"
	"log"
	"os"

	"studybuddy_backend/internal/config"
	"studybuddy_backend/internal/repository"
	"studybuddy_backend/internal/service"
	"studybuddy_backend/pkg/database"
	"studybuddy_backend/pkg/logger"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Server   config.ServerConfig   `yaml:"server"`
	Database config.DatabaseConfig `yaml:"database"`
	Log      config.LogConfig      `yaml:"log"`
}

func main() {
	path := "configs/config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		fc.Database.Path = v
	}

	cfg := &config.Config{Server: fc.Server, Database: fc.Database, Log: fc.Log}
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(&cfg.Database, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	quizService := service.NewQuizService(
		db,
		repository.NewQuizRepository(db),
		repository.NewAttemptRepository(db),
		repository.NewStatsCache(nil, 0),
	)

	fixed, err := quizService.RecomputeTotals(context.Background())
	if err != nil {
		log.Fatalf("重算失败: %v", err)
	}
	log.Printf("完成！修正了 %d 个测验的总分", fixed)
}
