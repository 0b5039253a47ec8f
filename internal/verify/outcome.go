package verify

// ReasonerOutcome is either a verdict or the error that prevented one
type ReasonerOutcome struct {
	verdict Verdict
	err     error
}

func ReasonerSucceeded(v Verdict) ReasonerOutcome {
	return ReasonerOutcome{verdict: v}
}

// ReasonerFailed wraps a failed call. A nil err is treated as an unclassified
// network failure so the outcome can never be mistaken for a verdict.
func ReasonerFailed(err error) ReasonerOutcome {
	if err == nil {
		err = &Error{Kind: KindNetwork, Message: "reasoner returned no verdict"}
	}
	return ReasonerOutcome{err: err}
}

// Verdict returns the verdict and true on success
func (o ReasonerOutcome) Verdict() (Verdict, bool) {
	return o.verdict, o.err == nil
}

func (o ReasonerOutcome) Err() error {
	return o.err
}

type authorityState int

const (
	authoritySkipped authorityState = iota
	authorityAnswered
	authorityFailed
)

// AuthorityOutcome is one of: skipped (with a reason), answered, or failed.
// The zero value is skipped.
type AuthorityOutcome struct {
	state   authorityState
	reason  string
	verdict AuthorityVerdict
	err     error
}

// AuthoritySkipped records that no lookup was made
func AuthoritySkipped(reason string) AuthorityOutcome {
	return AuthorityOutcome{state: authoritySkipped, reason: reason}
}

// AuthorityAnswered records a completed lookup. A verdict carrying a
// backend-reported Error becomes a failure.
func AuthorityAnswered(v AuthorityVerdict) AuthorityOutcome {
	if v.Error != "" {
		return AuthorityFailed(&Error{Kind: KindNetwork, Message: v.Error})
	}
	return AuthorityOutcome{state: authorityAnswered, verdict: v}
}

func AuthorityFailed(err error) AuthorityOutcome {
	if err == nil {
		err = &Error{Kind: KindNetwork, Message: "authority lookup returned no answer"}
	}
	return AuthorityOutcome{state: authorityFailed, err: err}
}

func (o AuthorityOutcome) Skipped() bool {
	return o.state == authoritySkipped
}

// SkipReason is empty unless the outcome is skipped
func (o AuthorityOutcome) SkipReason() string {
	return o.reason
}

// Verdict returns the lookup answer and true when the call completed
func (o AuthorityOutcome) Verdict() (AuthorityVerdict, bool) {
	return o.verdict, o.state == authorityAnswered
}

func (o AuthorityOutcome) Err() error {
	if o.state != authorityFailed {
		return nil
	}
	return o.err
}
