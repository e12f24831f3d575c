package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/shadow"
)

type scoreFlags struct {
	problemType   string
	mode          string
	roomStability []string
	assertions    bool
	explain       bool
}

func newScoreCmd() *cobra.Command {
	flags := scoreFlags{}
	cmd := &cobra.Command{
		Use:   "score <problem.json>",
		Short: "加载问题文件并输出分数",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return runScore(cmd, flags, data)
		},
	}

	cmd.Flags().StringVarP(&flags.problemType, "type", "t", "", "问题类型: "+strings.Join(domain.Types(), ", "))
	cmd.Flags().StringVar(&flags.mode, "mode", shadow.Memoized.String(), "影子属性传播模式: full 或 memoized")
	cmd.Flags().StringSliceVar(&flags.roomStability, "room-stability", []string{"required"}, "参与 Room stability 约束的出席类型")
	cmd.Flags().BoolVar(&flags.assertions, "assertions", false, "每次变更后校验规划图的一致性")
	cmd.Flags().BoolVar(&flags.explain, "explain", false, "输出每个约束的分数和命中明细")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func runScore(cmd *cobra.Command, flags scoreFlags, data []byte) error {
	mode, err := shadow.ParseMode(flags.mode)
	if err != nil {
		return err
	}

	opts := domain.DefaultOptions()
	opts.PropagationMode = mode
	opts.RoomStability = flags.roomStability
	opts.Assertions = flags.assertions

	d, err := domain.Load(flags.problemType, data, opts)
	if err != nil {
		return err
	}
	summary := domain.Summarize("", flags.problemType, d)

	out := cmd.OutOrStdout()
	if !flags.explain {
		fmt.Fprintf(out, "%s (feasible: %t)\n", summary.Score, summary.Feasible)
		for _, c := range summary.Constraints {
			if !c.Score.IsZero() {
				fmt.Fprintf(out, "  %-50s %s\n", c.Name, c.Score)
			}
		}
		return nil
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
