// Package connector defines the contract every source adapter implements
// and the helpers they share.
//
// A connector turns a time window into normalized updates. It distinguishes
// two kinds of failure:
//
//   - Partial failures (one channel, one page, one message) are logged and
//     skipped. FetchUpdates still returns everything else it fetched and a
//     nil error.
//   - Total failures (rejected credentials, missing configuration, the
//     collection listing itself failing) are returned as a *domain.Error of
//     kind connector_failure or setup_error, so "broken" is never confused
//     with "nothing new".
package connector

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"

	"intelbrief.app/brief/common/logger"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/model"
)

// Connector fetches updates from one external service.
type Connector interface {
	Source() model.Source
	FetchUpdates(ctx context.Context, window model.Window) ([]model.Update, error)
}

// Credentials supplies OAuth tokens to connectors of Google services.
type Credentials interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// MaxLoggedErrorLen caps error text in logs; API errors can embed whole
// response bodies.
const MaxLoggedErrorLen = 500

// Skip logs a partial failure and returns the typed error for callers that
// want to count it. The unit is excluded from results.
func Skip(ctx context.Context, source model.Source, op string, err error, attrs ...any) *domain.Error {
	terr := domain.NewTransientError(string(source), op, err)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Source: logger.Ptr(string(source)),
		Op:     logger.Ptr(op),
	})
	args := append([]any{"error", logger.Truncate(err.Error(), MaxLoggedErrorLen)}, attrs...)
	slog.WarnContext(ctx, "skipping unit after fetch error", args...)
	return terr
}

// Fail wraps a total failure.
func Fail(source model.Source, op string, err error) error {
	return domain.NewConnectorFailure(string(source), op, err)
}

// MissingConfig reports mandatory configuration that is absent.
func MissingConfig(source model.Source, err error) error {
	return domain.NewSetupError(string(source), err)
}

// Remaining returns how many more items fit under limit.
func Remaining(limit, have int) int {
	if have >= limit {
		return 0
	}
	return limit - have
}
