package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain/meeting"
	_ "github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain/rostering"
	_ "github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain/routing"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "planctl",
		Short:         "对规划问题评分，把问题投递到评分队列或查询评分结果",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScoreCmd(), newPublishCmd(), newResultCmd())
	return root
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("命令执行失败", "error", err)
		os.Exit(1)
	}
}
