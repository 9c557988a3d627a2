package usecase

type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRetry    Outcome = "retry"
	OutcomeTerminal Outcome = "terminal"
	// OutcomeInterrupted releases the claim without spending the attempt
	// decision; used when shutdown cancels a job mid-flight.
	OutcomeInterrupted Outcome = "interrupted"
)

// Result is what one pipeline run asks the result store to do.
type Result struct {
	Outcome Outcome
	Detail  string

	// Raw and Normalized hold the encoded results when Outcome is OutcomeSuccess.
	Raw        []byte
	Normalized []byte
}

// Decide picks requeue or terminal failure for a job that failed on its
// attempts-th claim.
func Decide(attempts, maxAttempts int, message string) Result {
	if attempts < maxAttempts {
		return Result{Outcome: OutcomeRetry, Detail: message}
	}
	return Result{Outcome: OutcomeTerminal, Detail: message}
}

func terminal(message string) Result {
	return Result{Outcome: OutcomeTerminal, Detail: message}
}
