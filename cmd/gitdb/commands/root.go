package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gitdb/pkg/app"
	"gitdb/pkg/config"
	"gitdb/pkg/logging"
	"gitdb/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile string
	branch  string
	output  string

	// 全局应用实例，供子命令使用
	DB *app.App

	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "gitdb",
	Short:         "gitdb: a versioned document database",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closer, err := logging.Setup(cmd.ErrOrStderr(), logging.Config{
			Level:      viper.GetString("log.level"),
			File:       viper.GetString("log.file"),
			MaxSizeMB:  viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
			MaxAgeDays: viper.GetInt("log.max_age_days"),
		})
		if err != nil {
			return err
		}
		logCloser = closer

		if output != "text" && output != "yaml" {
			return fmt.Errorf("%w: unknown output format %q", types.ErrInvalidArgument, output)
		}
		if branch == "" {
			branch = viper.GetString("repo.default_branch")
		}

		// 除了 init，其它命令都要求仓库已经存在
		if cmd.Name() != "init" && viper.GetString("storage.type") == "disk" {
			if _, err := os.Stat(viper.GetString("storage.path")); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("not a gitdb repository (run 'gitdb init' first)")
			}
		}

		DB, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize gitdb: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext 执行命令并释放本次运行打开的资源
func ExecuteContext(ctx context.Context) error {
	defer closeApp()
	return rootCmd.ExecuteContext(ctx)
}

func closeApp() {
	if DB != nil {
		if err := DB.Close(); err != nil {
			slog.Warn("failed to close app", slog.Any("err", err))
		}
		DB = nil
	}
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./.gitdb/config.yaml or $HOME/.gitdb/config.yaml)")
	flags.StringVarP(&branch, "branch", "b", "", "branch (or ref, for read commands) to operate on (default repo.default_branch)")
	flags.StringVarP(&output, "output", "o", "text", "output format: text|yaml")

	// storage.path 既可以写在 yaml 里，也可以用 --storage-path 覆盖
	flags.String("storage-path", "", "directory to store objects")
	if err := viper.BindPFlag("storage.path", flags.Lookup("storage-path")); err != nil {
		fmt.Fprintln(os.Stderr, "failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
}

// render 按 --output 输出：yaml 模式编码 v，否则调用 text
func render(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	if output != "yaml" {
		return text(w)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
