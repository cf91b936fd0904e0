package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RepoDirName 是仓库元数据目录
const RepoDirName = ".gitdb"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序: 当前目录 -> ./.gitdb -> ~/.gitdb
		viper.AddConfigPath(".")
		viper.AddConfigPath(RepoDirName)
		viper.AddConfigPath(filepath.Join(home, RepoDirName))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// GITDB_DATABASE_DRIVER -> database.driver
	viper.SetEnvPrefix("GITDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		slog.Debug("no config file found, using defaults and env vars")
		return nil
	}
	slog.Debug("using config file", slog.String("path", viper.ConfigFileUsed()))
	return nil
}

func setDefaults() {
	wd, _ := os.Getwd()
	repoDir := filepath.Join(wd, RepoDirName)

	// 存储
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(repoDir, "objects"))
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// 数据库
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("repo.default_branch", "master")
	viper.SetDefault("user.name", defaultUser())
	viper.SetDefault("log.level", "warn")
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "gitdb"
}
