package pipeline

import (
	"context"
	"fmt"

	"starload/internal/observability"
	"starload/internal/queries"
	"starload/internal/warehouse"
	"starload/pkg/errors"
)

// CheckResult is the outcome of one data-quality check
type CheckResult struct {
	Check      queries.Check
	Violations int64
}

// Passed reports whether the check found nothing
func (c CheckResult) Passed() bool {
	return c.Violations == 0
}

// CheckReport holds every check result plus the informational join-miss count
type CheckReport struct {
	Results    []CheckResult
	JoinMisses int64
}

// Failed returns the checks with violations
func (r *CheckReport) Failed() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// Err returns an ErrCodeQualityCheck error when any check failed
func (r *CheckReport) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	appErr := errors.New(errors.ErrCodeQualityCheck,
		fmt.Sprintf("%d of %d data-quality checks failed", len(failed), len(r.Results)))
	for _, res := range failed {
		appErr = appErr.WithContext(res.Check.Name, res.Violations)
	}
	return appErr
}

// RunChecks runs every data-quality check. A query error stops the run;
// violations do not.
func RunChecks(ctx context.Context, exec warehouse.Executor, dialect queries.Dialect, logger *observability.Logger) (*CheckReport, error) {
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}

	report := &CheckReport{}
	for _, check := range queries.QualityChecks(dialect) {
		n, err := exec.QueryInt(ctx, nil, check.SQL)
		if err != nil {
			return report, errors.Wrap(err, errors.GetErrorCode(err), "Check "+check.Name+" could not run").
				WithContext("check", check.Name)
		}
		report.Results = append(report.Results, CheckResult{Check: check, Violations: n})

		fields := map[string]interface{}{"check": check.Name, "violations": n}
		if n > 0 {
			logger.WarnWithFields("data-quality check failed", fields)
		} else {
			logger.DebugWithFields("data-quality check passed", fields)
		}
	}

	misses, err := exec.QueryInt(ctx, nil, queries.JoinMissQuery(dialect))
	if err != nil {
		return report, err
	}
	report.JoinMisses = misses
	return report, nil
}
