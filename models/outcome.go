package models

// OutcomeKind tags an ExtractionOutcome. The set is closed: every worker
// dispatch switches over exactly these three values.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomePermanentFailure
	OutcomeTemporaryFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomePermanentFailure:
		return "permanent_failure"
	case OutcomeTemporaryFailure:
		return "temporary_failure"
	}
	return "unknown"
}

// Failure reasons carried by an ExtractionOutcome.
const (
	ReasonNotFound           = "not_found"
	ReasonInvalidURL         = "invalid_url"
	ReasonTimeout            = "timeout"
	ReasonNetwork            = "network_error"
	ReasonChallengeExhausted = "challenge_exhausted"
	ReasonParseError         = "parse_error"
)

// ExtractionOutcome is the classified result of one enrichment attempt.
// Fields is set only for OutcomeSuccess; Reason only for failures.
type ExtractionOutcome struct {
	Kind   OutcomeKind
	Fields *DetailFields
	Reason string
	Err    error
}

func Success(fields *DetailFields) ExtractionOutcome {
	return ExtractionOutcome{Kind: OutcomeSuccess, Fields: fields}
}

func PermanentFailure(reason string, err error) ExtractionOutcome {
	return ExtractionOutcome{Kind: OutcomePermanentFailure, Reason: reason, Err: err}
}

func TemporaryFailure(reason string, err error) ExtractionOutcome {
	return ExtractionOutcome{Kind: OutcomeTemporaryFailure, Reason: reason, Err: err}
}
