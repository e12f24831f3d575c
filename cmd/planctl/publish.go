package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
)

type publishFlags struct {
	problemType string
	jobID       string
	dsn         string
	queue       string
	timeout     time.Duration
}

func newPublishCmd() *cobra.Command {
	flags := publishFlags{}
	cmd := &cobra.Command{
		Use:   "publish <problem.json>",
		Short: "把问题投递到评分队列，输出任务 ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			body, jobID, err := buildMessage(flags, data)
			if err != nil {
				return err
			}
			if err := publish(cmd.Context(), flags, body); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.problemType, "type", "t", "", "问题类型")
	cmd.Flags().StringVar(&flags.jobID, "job-id", "", "任务 ID，为空时自动生成")
	cmd.Flags().StringVar(&flags.dsn, "dsn", os.Getenv("RABBITMQ_DSN"), "RabbitMQ 连接地址")
	cmd.Flags().StringVar(&flags.queue, "queue", "scoring_queue", "评分队列名称")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "发布超时时间")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// buildMessage 只检查 JSON 是否合法，问题本身由 worker 校验
func buildMessage(flags publishFlags, data []byte) ([]byte, string, error) {
	if !json.Valid(data) {
		return nil, "", fmt.Errorf("%w: 文件不是合法的 JSON", domain.ErrMalformedProblem)
	}

	jobID := flags.jobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	body, err := json.Marshal(domain.ScoringMessage{
		JobID:       jobID,
		ProblemType: flags.problemType,
		Problem:     json.RawMessage(data),
	})
	if err != nil {
		return nil, "", err
	}
	return body, jobID, nil
}

func publish(ctx context.Context, flags publishFlags, body []byte) error {
	if flags.dsn == "" {
		return errors.New("缺少 RabbitMQ 连接地址，请设置 --dsn 或 RABBITMQ_DSN")
	}

	conn, err := amqp.Dial(flags.dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(flags.queue, true, false, false, false, nil); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		"",
		flags.queue,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
