package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chicogong/vidioai/pkg/logging"
	"github.com/chicogong/vidioai/pkg/queue"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume commands from RabbitMQ and publish results",
		Args:  cobra.NoArgs,
		RunE:  runWorker,
	}
	cmd.Flags().Duration("timeout", 10*time.Minute, "Per-command timeout, 0 for none")
	return cmd
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	qc := a.cfg.Queue
	if qc.URL == "" {
		return fmt.Errorf("queue.url is required (or set VIDIOAI_AMQP_URL)")
	}

	consumer, err := queue.NewConsumer(qc.URL, qc.Commands)
	if err != nil {
		return err
	}
	defer consumer.Close()

	producer, err := queue.NewProducer(qc.URL)
	if err != nil {
		return err
	}
	defer producer.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	worker := queue.NewWorker(func(id string) queue.Session {
		return a.newSession(id)
	}, producer, qc.Results,
		queue.WithTimeout(timeout),
		queue.WithValidator(a.validator),
		queue.WithLogger(logging.WithComponent("worker")),
	)

	deliveries, err := consumer.Consume("vidioai-worker")
	if err != nil {
		return err
	}

	a.logger.Info().Str("queue", qc.Commands).Msg("waiting for commands")
	if err := worker.Run(ctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
