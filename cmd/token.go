package cmd

import (
	"fmt"
	"log"
	"time"

	"JamFM/config"
	"JamFM/core/auth"

	"github.com/spf13/cobra"
)

var (
	tokenUserID   int64
	tokenUsername string
	tokenTTLHours int
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发本地开发用的访问令牌",
	Long:  `使用当前配置的密钥签发一个访问令牌，用于本地开发和接口调试。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		token, err := auth.GenerateToken(cfg.JWTSecret, tokenUserID, tokenUsername, "",
			time.Duration(tokenTTLHours)*time.Hour)
		if err != nil {
			log.Fatalf("签发令牌失败: %v", err)
		}
		fmt.Println(token)
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUserID, "user", 1, "用户ID")
	tokenCmd.Flags().StringVar(&tokenUsername, "name", "dev", "用户名")
	tokenCmd.Flags().IntVar(&tokenTTLHours, "ttl", 72, "有效期（小时）")
	rootCmd.AddCommand(tokenCmd)
}
