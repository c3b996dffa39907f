package domain

// ModelOracle resolves a model name to its parameter count in billions, which
// is the model's kudos multiplier. Implementations may call external services;
// the engine never invokes the oracle while holding its lock and treats any
// error as multiplier 1.
type ModelOracle interface {
	ParametersBillions(ctx Context, model string) (float64, error)
}

// TokenEstimator approximates how many tokens a prompt occupies, used to
// reject prompts that exceed the requested context window before queueing.
type TokenEstimator interface {
	EstimateTokens(text string) int
}
