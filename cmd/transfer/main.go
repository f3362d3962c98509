// 転送サービスのエントリポイント。
// Globus Transfer APIへの転送リクエストを、ログイン済みのセッションを
// 確認したうえで中継する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nao1215/rdsds/internal/config"
	"github.com/nao1215/rdsds/internal/gateway"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Start the transfer proxy service",
	Long: `Start the transfer proxy service.

If no config file is specified, the service looks for config.yaml in:
  - ./
  - ./config/
  - /etc/rdsds/
Every key can be overridden with an RDSDS_ prefixed environment variable
(for example RDSDS_GLOBUS_CLIENT_ID).`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		server, err := gateway.NewServer(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := server.Close(); err != nil {
				logrus.WithError(err).Errorln("リソースの解放に失敗")
			}
		}()

		logrus.WithField("addr", cfg.Server.Addr()).Infoln("転送サービスを起動します")
		return server.Run(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		store, err := gateway.OpenStore(cmd.Context(), cfg.Database.Path)
		if err != nil {
			return err
		}
		return store.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (optional)")
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatalf("転送サービスの実行に失敗: %v", err)
	}
}
