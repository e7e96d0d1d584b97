package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/cmake-judge/internal/environment"
	"github.com/programme-lv/cmake-judge/internal/logging"
	"github.com/programme-lv/cmake-judge/internal/worker"
	"github.com/urfave/cli/v3"
)

func serveCommand(env *environment.EnvConfig) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "judge requests arriving on a NATS subject",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "nats-url", Value: env.NatsUrl},
			&cli.StringFlag{Name: "subject", Value: env.NatsSubject},
			&cli.StringFlag{Name: "result-subject", Value: env.NatsSubject + ".results", Usage: "used when a request has no reply inbox"},
			&cli.IntFlag{Name: "parallel", Value: 1, Usage: "evaluations run at once, each needs its own workdir"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := logging.New(cmd.String("log-level"), os.Stderr)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			nc, err := nats.Connect(cmd.String("nats-url"),
				nats.Name("cmake-judge"),
				nats.MaxReconnects(-1),
				nats.ReconnectWait(2*time.Second),
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					logger.Warn("disconnected from nats", "error", err)
				}),
				nats.ReconnectHandler(func(c *nats.Conn) {
					logger.Info("reconnected to nats", "url", c.ConnectedUrl())
				}),
			)
			if err != nil {
				return fmt.Errorf("failed to connect to nats: %w", err)
			}
			defer nc.Close()

			ctrl := newController(env, cmd.String("cache-dir"), loadAwsConfig(ctx, env.AwsRegion, logger), logger)
			w := worker.New(nc, ctrl, worker.Config{
				Subject:       cmd.String("subject"),
				ResultSubject: cmd.String("result-subject"),
				Parallel:      int(cmd.Int("parallel")),
			}, logger)

			if err := w.Serve(ctx, nc); err != nil {
				return err
			}
			logger.Info("stopped")
			return nil
		},
	}
}
