package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/cmake-judge/api"
	"github.com/programme-lv/cmake-judge/internal/cmake"
	"github.com/programme-lv/cmake-judge/internal/environment"
	"github.com/programme-lv/cmake-judge/internal/gatherer"
	"github.com/programme-lv/cmake-judge/internal/gatherer/jsongath"
	"github.com/programme-lv/cmake-judge/internal/gatherer/sqsgath"
	"github.com/programme-lv/cmake-judge/internal/gatherer/termgath"
	"github.com/programme-lv/cmake-judge/internal/judgement"
	"github.com/programme-lv/cmake-judge/internal/littest"
	"github.com/programme-lv/cmake-judge/internal/logging"
	"github.com/programme-lv/cmake-judge/internal/pipeline"
	"github.com/programme-lv/cmake-judge/internal/resources"
	"github.com/urfave/cli/v3"
)

func main() {
	env, err := environment.ReadEnvConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(env, os.Stdin, os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newCommand(env *environment.EnvConfig, stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "judge",
		Usage: "build a CMake submission, run its lit tests and print one judgement",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: env.LogLevel, Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "output", Value: "json", Usage: "json or term"},
			&cli.StringFlag{Name: "sqs-url", Value: env.SqsUrl, Usage: "also send the judgement to this SQS queue"},
			&cli.StringFlag{Name: "cache-dir", Value: env.CacheDir, Usage: "where downloaded resource bundles are kept"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := logging.New(cmd.String("log-level"), os.Stderr)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			out, err := outputSink(cmd.String("output"), stdout)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			awsCfg := loadAwsConfig(ctx, env.AwsRegion, logger)

			sinks := []judgement.Emitter{out}
			if url := cmd.String("sqs-url"); url != "" {
				sinks = append(sinks, sqsgath.New(sqs.NewFromConfig(awsCfg), url))
			}
			sink := gatherer.Tee(sinks...)

			var req api.EvalReq
			if err := json.NewDecoder(stdin).Decode(&req); err != nil {
				return rejectRequest(ctx, sink, fmt.Errorf("failed to decode request: %w", err))
			}

			ctrl := newController(env, cmd.String("cache-dir"), awsCfg, logger)
			return ctrl.Run(ctx, req, sink)
		},
		Commands: []*cli.Command{serveCommand(env), healthCommand(env, stdout)},
	}
}

func outputSink(format string, w io.Writer) (judgement.Emitter, error) {
	switch format {
	case "json":
		return jsongath.New(w), nil
	case "term":
		return termgath.New(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q, want json or term", format)
	}
}

func newController(env *environment.EnvConfig, cacheDir string, awsCfg aws.Config, logger *slog.Logger) *pipeline.Controller {
	return pipeline.New(
		cmake.New(env.CMakeCommand, logger),
		littest.New(env.LitCommand, logger),
		pipeline.WithResolver(resources.New(s3.NewFromConfig(awsCfg), cacheDir, logger)),
		pipeline.WithLogger(logger),
	)
}

func loadAwsConfig(ctx context.Context, region string, logger *slog.Logger) aws.Config {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		logger.Warn("unable to load AWS SDK config, remote resources and queues will fail", "error", err)
		return aws.Config{Region: region}
	}
	return cfg
}

// rejectRequest emits an internal-error judgement for input that could not be
// turned into a request and returns cause.
func rejectRequest(ctx context.Context, sink judgement.Emitter, cause error) error {
	rec := judgement.Acquire(sink, "")
	_ = rec.Reject(api.StatusInternalError)
	_ = rec.AddMessages(api.Message{Description: cause.Error(), Format: api.FormatPlain, Type: "internal"})
	if err := rec.Release(ctx); err != nil {
		return fmt.Errorf("%w; %w", cause, err)
	}
	return cause
}
