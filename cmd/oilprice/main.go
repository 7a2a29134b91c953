// Command oilprice queries OilPriceAPI from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Sternrassler/oilpriceapi-go/pkg/client"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitAPI        = 5
	ExitInterrupt  = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(os.Getenv, os.Stderr)
	rootCmd := newRootCmd(a)

	err := rootCmd.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var apiErr *client.Error
	isAPIErr := errors.As(err, &apiErr)

	switch {
	case errors.Is(err, context.Canceled), isAPIErr && apiErr.Code == client.CodeCancelled:
		return ExitInterrupt
	case errors.Is(err, client.ErrInvalidArgument):
		return ExitValidation
	case errors.Is(err, client.ErrMissingAPIKey), errors.Is(err, client.ErrInvalidConfig),
		errors.Is(err, errRedisRequired):
		return ExitSetup
	case isAPIErr:
		return ExitAPI
	case isCobraUsageError(err):
		return ExitUsage
	}
	return ExitGeneral
}

// Cobra does not expose typed errors for flag and argument parsing.
var cobraUsageErrorPatterns = []string{
	"required flag",
	"unknown flag",
	"unknown shorthand",
	"unknown command",
	"flag needs an argument",
	"invalid argument",
	"accepts ",
	"requires at least",
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
