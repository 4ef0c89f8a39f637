package service

import (
	"context"
	"errors"

	"circuitsync/internal/domain"
)

// Reporters fans one result out to several reporters. Every reporter is
// called even when an earlier one fails.
type Reporters []Reporter

// Report implements Reporter
func (rs Reporters) Report(ctx context.Context, result *domain.ReconciliationResult) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
