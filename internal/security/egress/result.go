package egress

// Decision is the audit outcome of one event.
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionBlock Decision = "BLOCK"
	DecisionInfo  Decision = "INFO"
	DecisionWarn  Decision = "WARN"
	DecisionError Decision = "ERROR"
)

// Result is the outcome of validating one request.
type Result struct {
	Decision Decision
	Reason   Reason
	Message  string
	Request  *ValidationRequest
	// Warning is set when the request was allowed without a full check,
	// e.g. resolution failed under the open policy.
	Warning string
	Cause   error
}

func (r Result) Allowed() bool {
	return r.Decision == DecisionAllow
}

// Err returns nil for allowed results and a *DeniedError otherwise.
func (r Result) Err() error {
	if r.Allowed() {
		return nil
	}
	e := &DeniedError{Reason: r.Reason, Message: r.Message, Err: r.Cause}
	if r.Request != nil {
		e.Method = r.Request.Method
		e.URL = r.Request.RawURL
	}
	return e
}

func allow(req *ValidationRequest) Result {
	return Result{Decision: DecisionAllow, Request: req}
}

func deny(req *ValidationRequest, reason Reason, msg string) Result {
	return Result{Decision: DecisionBlock, Reason: reason, Message: msg, Request: req}
}
