package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/lk2023060901/chatbot-rag/internal/conf"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("69")).
			Padding(0, 1)
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "chatbot-rag knowledge base and user management",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "config.yaml", "config file path")
	root.PersistentFlags().Bool("verbose", false, "print info level logs")

	root.AddCommand(
		IngestCmd(),
		ClearCmd(),
		ChunkCmd(),
		UserCmd(),
	)
	return root
}

// setup 读取配置并创建日志，默认只输出 warn 以上
func setup(cmd *cobra.Command) (*conf.Config, *logger.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, nil, err
	}

	cfg, err := conf.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logCfg := cfg.Log
	logCfg.Output = "console"
	if !verbose {
		logCfg.Level = "warn"
	}
	log, err := logger.New(&logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(log)
	return cfg, log, nil
}
