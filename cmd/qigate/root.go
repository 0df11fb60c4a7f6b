package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tokmz/qigate/pkg/config"
)

// rootFlags 命令行参数，非空时覆盖配置文件和环境变量
type rootFlags struct {
	configFile string
	logLevel   string
	strategy   string
	token      string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "qigate",
		Short:         "Sharded gateway client",
		Long:          "qigate connects the shards of a sharded WebSocket gateway one at a time and relays their events.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "path to the config file (default: ./qigate.yaml or /etc/qigate/qigate.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.strategy, "strategy", "", "sharding strategy: simple, multi:N, range:I:C:T")
	pf.StringVar(&flags.token, "token", "", "gateway token (env QIGATE_GATEWAY_TOKEN)")

	return cmd
}

// loader 按参数创建配置加载器
func (f *rootFlags) loader(opts ...config.Option) *config.Loader {
	if f.configFile != "" {
		opts = append(opts, config.WithConfigFile(f.configFile))
	} else {
		opts = append(opts,
			config.WithConfigName("qigate"),
			config.WithConfigPaths(".", "/etc/qigate"),
			config.WithOptional(true),
		)
	}

	l := config.New(opts...)
	if f.logLevel != "" {
		l.Set("log.level", f.logLevel)
	}
	if f.strategy != "" {
		l.Set("gateway.strategy", f.strategy)
	}
	if f.token != "" {
		l.Set("gateway.token", f.token)
	}
	return l
}
