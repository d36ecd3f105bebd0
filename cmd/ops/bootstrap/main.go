// Command bootstrap seeds an environment's secrets into SSM Parameter Store
// and generates the staff API key.
//
// Usage:
//
//	DATABASE_URL=... TWILIO_AUTH_TOKEN=... go run ./cmd/ops/bootstrap -env dev
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/crypto/bcrypt"

	"amberline/internal/app"
	"amberline/internal/config"
)

var validEnvs = map[string]bool{"dev": true, "staging": true, "prod": true}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/staging/prod) [required]")
	regionFlag := flag.String("region", "us-east-1", "AWS region")
	endpointFlag := flag.String("endpoint", "", "SSM endpoint override (LocalStack)")
	overwrite := flag.Bool("overwrite", false, "Replace vendor secrets that already exist")
	rotate := flag.Bool("rotate-staff-key", false, "Generate a new staff key even if a hash exists")
	flag.Parse()

	if !validEnvs[*envFlag] {
		fmt.Fprintf(os.Stderr, "bootstrap: -env must be one of dev, staging, prod (got %q)\n", *envFlag)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *envFlag, config.AWSConfig{Region: *regionFlag, EndpointURL: *endpointFlag}, Options{
		Overwrite:      *overwrite,
		RotateStaffKey: *rotate,
		BcryptCost:     bcrypt.DefaultCost,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, env string, awsCfg config.AWSConfig, opts Options) error {
	logger := app.NewLogger("info")

	sdkCfg, err := app.LoadAWSConfig(ctx, awsCfg)
	if err != nil {
		return err
	}

	seeder := NewSeeder(NewSSMManager(ssm.NewFromConfig(sdkCfg), env, logger), os.LookupEnv, logger)
	outcomes, staffKey, err := seeder.Run(ctx, opts)
	if err != nil {
		return err
	}

	if staffKey != "" {
		fmt.Fprintf(os.Stderr, "New staff API key (shown once, send as X-API-Key): %s\n", staffKey)
	}
	return WriteEnvPointers(os.Stdout, outcomes)
}
