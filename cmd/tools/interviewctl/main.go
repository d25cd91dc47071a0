// interviewctl 是面试后端的命令行工具：在终端里完成一场面试，或单独调试语音合成与识别。
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "interviewctl",
	Short:         "Command line client for the interview backend",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(ttsCmd)
	rootCmd.AddCommand(asrCmd)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
