// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gitdb/pkg/exporter"
	"gitdb/pkg/gitdb"
	"gitdb/pkg/index"
	"gitdb/pkg/meta"
	"gitdb/pkg/storage"
	"gitdb/pkg/storage/cache"
	"gitdb/pkg/storage/disk"
	"gitdb/pkg/storage/memory"
	"gitdb/pkg/storage/s3"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它按 Viper 配置组装存储、元数据库和引擎，但不知道具体的 CLI 命令
type App struct {
	Store      storage.Store
	Meta       *meta.DB
	Repository *meta.Repository
	Engine     *gitdb.DB
	Exporter   *exporter.Exporter

	// Index 是 CLI add/commit 使用的持久化暂存区
	Index *index.Index

	RepoPath string
	User     string
}

// NewApp 是工厂函数
func NewApp(ctx context.Context) (*App, error) {
	storePath := viper.GetString("storage.path")
	if storePath == "" {
		return nil, fmt.Errorf("storage path not set")
	}
	// storePath: .../.gitdb/objects
	// repoPath:  .../.gitdb
	repoPath := filepath.Dir(storePath)

	store, err := initStore(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	db, err := initDB(ctx, repoPath)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("failed to init metadata db: %w", err)
	}

	idx, err := index.NewIndex(filepath.Join(repoPath, "index.json"))
	if err != nil {
		closeStore(store)
		db.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	repo := meta.NewRepository(db)
	engine := gitdb.New(store, repo,
		gitdb.WithDefaultBranch(viper.GetString("repo.default_branch")),
		gitdb.WithActor(viper.GetString("user.name")),
	)

	return &App{
		Store:      store,
		Meta:       db,
		Repository: repo,
		Engine:     engine,
		Exporter:   exporter.NewExporter(engine.Objects()),
		Index:      idx,
		RepoPath:   repoPath,
		User:       viper.GetString("user.name"),
	}, nil
}

// Close 释放数据库连接和缓存连接
func (a *App) Close() error {
	var errs []error
	if a.Meta != nil {
		errs = append(errs, a.Meta.Close())
	}
	errs = append(errs, closeStore(a.Store))
	return errors.Join(errs...)
}

func closeStore(store storage.Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// initStore 按 storage.type 选择后端；配置了 cache.redis_url 时外面再包一层 Redis 缓存
func initStore(ctx context.Context, repoPath string) (storage.Store, error) {
	var backend storage.Store
	switch t := viper.GetString("storage.type"); t {
	case "", "disk":
		path := viper.GetString("storage.path")
		if path == "" {
			path = filepath.Join(repoPath, "objects")
		}
		store, err := disk.NewAdapter(path)
		if err != nil {
			return nil, err
		}
		backend = store
	case "memory":
		backend = memory.NewAdapter()
	case "s3":
		cfg := s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			AccessKeyID:     viper.GetString("s3.access_key"),
			SecretAccessKey: viper.GetString("s3.secret_key"),
			Prefix:          viper.GetString("s3.prefix"),
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		store, err := s3.NewAdapter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		backend = store
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", t)
	}

	redisURL := viper.GetString("cache.redis_url")
	if redisURL == "" {
		return backend, nil
	}
	cached, err := cache.NewCachedStore(backend, cache.Config{
		RedisURL:      redisURL,
		TTL:           viper.GetDuration("cache.ttl"),
		MaxObjectSize: viper.GetInt("cache.max_object_size"),
	})
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// initDB 打开引用表与提交索引所在的数据库
func initDB(ctx context.Context, repoPath string) (*meta.DB, error) {
	cfg := meta.Config{
		Driver:   viper.GetString("database.driver"),
		Path:     viper.GetString("database.path"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
		Debug:    viper.GetBool("database.debug"),
	}
	if (cfg.Driver == "" || cfg.Driver == "sqlite") && cfg.Path == "" {
		cfg.Path = filepath.Join(repoPath, "gitdb.db")
	}
	return meta.NewDB(ctx, cfg)
}
