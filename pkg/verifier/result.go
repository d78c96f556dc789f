package verifier

// Status is the outcome category of one verification pass.
type Status int

const (
	// NotYet means a prerequisite pass has not succeeded, so this pass was
	// not run.
	NotYet Status = iota
	OK
	Rejected
)

func (s Status) String() string {
	switch s {
	case NotYet:
		return "NOTYET"
	case OK:
		return "OK"
	case Rejected:
		return "REJECTED"
	}
	return "UNKNOWN"
}

// Result is the terminal outcome of one pass on one class or method.
type Result struct {
	Status  Status
	Message string
}

var (
	ResultOK     = Result{Status: OK, Message: "All checks passed."}
	ResultNotYet = Result{Status: NotYet, Message: "Not yet verified."}
)

// Reject builds a rejection carrying a human-readable reason.
func Reject(msg string) Result {
	return Result{Status: Rejected, Message: msg}
}

func (r Result) IsOK() bool { return r.Status == OK }

func (r Result) String() string {
	switch r.Status {
	case OK:
		return "VERIFIED_OK"
	case NotYet:
		return "VERIFIED_NOTYET"
	}
	return "VERIFIED_REJECTED: " + r.Message
}
