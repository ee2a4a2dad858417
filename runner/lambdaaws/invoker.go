package lambdaaws

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/deduper"
	"github.com/Vector/vector-trip-scraper/runner"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
	"github.com/Vector/vector-trip-scraper/tlmt"
)

var errNoURLs = errors.New("no trip URLs found in input file")

var _ runner.Runner = (*invoker)(nil)

type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

type invoker struct {
	lclient  lambdaInvoker
	payloads []lInput
	log      *zap.Logger
}

func NewInvoker(ctx context.Context, cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeAwsLambdaInvoker {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}

	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}

	awscfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	f, err := os.Open(cfg.InputFile)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	base := lInput{
		JobID:        uuid.New().String(),
		Force:        cfg.Force,
		Concurrency:  cfg.Concurrency,
		FunctionName: cfg.FunctionName,
	}

	payloads, err := chunkPayloads(f, cfg.AwsLambdaChunkSize, base)
	if err != nil {
		return nil, err
	}

	return &invoker{
		lclient:  lambda.NewFromConfig(awscfg),
		payloads: payloads,
		log:      log,
	}, nil
}

func (i *invoker) Run(ctx context.Context) error {
	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent(tlmt.EventRunnerStart, map[string]any{
		"mode":   runner.ModeName(runner.RunModeAwsLambdaInvoker),
		"chunks": len(i.payloads),
	}))

	for j := range i.payloads {
		if err := i.invoke(ctx, i.payloads[j]); err != nil {
			return err
		}
	}

	i.log.Info("lambda chunks dispatched", zap.Int("chunks", len(i.payloads)))

	return nil
}

func (i *invoker) Close(context.Context) error {
	return nil
}

//nolint:gocritic // let's pass the input as is
func (i *invoker) invoke(ctx context.Context, input lInput) error {
	payloadBytes, err := json.Marshal(input)
	if err != nil {
		return err
	}

	result, err := i.lclient.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   &input.FunctionName,
		Payload:        payloadBytes,
		InvocationType: types.InvocationTypeEvent,
	})
	if err != nil {
		return fmt.Errorf("invoke part %d: %w", input.Part, err)
	}

	i.log.Info("lambda invoked",
		zap.String("function", input.FunctionName),
		zap.String("job_id", input.JobID),
		zap.Int("part", input.Part),
		zap.Int("urls", len(input.URLs)),
		zap.Int32("status", result.StatusCode),
	)

	return nil
}

// chunkPayloads validates every trip URL up front so a bad line fails the
// whole batch before anything is invoked.
//
//nolint:gocritic // base is copied into every chunk
func chunkPayloads(r io.Reader, size int, base lInput) ([]lInput, error) {
	var (
		payloads []lInput
		current  []string
		seen     = deduper.New()
	)

	flush := func() {
		p := base
		p.Part = len(payloads)
		p.URLs = current
		payloads = append(payloads, p)
		current = nil
	}

	scanner := bufio.NewScanner(r)

	line := 0

	for scanner.Scan() {
		line++

		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		target, err := scrapeapp.ValidateURL(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if !seen.AddIfNotExists(context.Background(), target) {
			continue
		}

		current = append(current, target)

		if len(current) >= size {
			flush()
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(current) > 0 {
		flush()
	}

	if len(payloads) == 0 {
		return nil, errNoURLs
	}

	return payloads, nil
}
