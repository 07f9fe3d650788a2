package authflow

import (
	"context"
	"time"

	"github.com/eventlyze/authflow/internal/flows"
)

// ValidateAccess verifies an access token and returns the principal it
// carries. It performs no Redis or provider calls; revocation and status
// changes take effect at the next refresh.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Principal, error) {
	if e != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := flows.RunValidateAccess(accessToken, e.validateFlowDeps())
	if err != nil {
		return nil, err
	}
	return &Principal{
		UserID:    claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func (e *Engine) validateFlowDeps() flows.ValidateDeps {
	errs := flows.ValidateErrors{
		EngineNotReady: ErrEngineNotReady,
		TokenInvalid:   ErrAccessTokenInvalid,
		TokenExpired:   ErrAccessTokenExpired,
	}
	if e == nil || e.accessTokens == nil {
		return flows.ValidateDeps{Errors: errs}
	}

	return flows.ValidateDeps{
		ParseAccess:    e.parseAccess,
		IsTokenExpired: isTokenExpired,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		Metrics: flows.ValidateMetrics{
			ValidateSuccess: int(MetricValidateSuccess),
			ValidateFailure: int(MetricValidateFailure),
		},
		Errors: errs,
	}
}
