package flows

// ValidateMetrics carries metric IDs needed by access token validation.
type ValidateMetrics struct {
	ValidateSuccess int
	ValidateFailure int
}

// ValidateErrors carries host-level sentinel errors used by access token validation.
type ValidateErrors struct {
	EngineNotReady error
	TokenInvalid   error
	TokenExpired   error
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	ParseAccess    func(string) (TokenClaims, error)
	IsTokenExpired func(error) bool

	MetricInc func(int)
	Metrics   ValidateMetrics
	Errors    ValidateErrors
}

// RunValidateAccess verifies an access token and returns its claims. It
// performs no store lookups.
func RunValidateAccess(tokenStr string, deps ValidateDeps) (TokenClaims, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ParseAccess == nil {
		return TokenClaims{}, deps.Errors.EngineNotReady
	}

	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		deps.MetricInc(deps.Metrics.ValidateFailure)
		if deps.IsTokenExpired != nil && deps.IsTokenExpired(err) {
			return TokenClaims{}, deps.Errors.TokenExpired
		}
		return TokenClaims{}, deps.Errors.TokenInvalid
	}

	deps.MetricInc(deps.Metrics.ValidateSuccess)
	return claims, nil
}
