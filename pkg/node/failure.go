package node

import "fmt"

// Reason tags why a node could not produce its value.
type Reason string

const (
	ReasonTemplate         Reason = "template"
	ReasonInvalidURL       Reason = "invalid_url"
	ReasonNetwork          Reason = "network"
	ReasonVideoUnavailable Reason = "video_unavailable"
	ReasonCaptionsDisabled Reason = "captions_disabled"
	ReasonNoTranscript     Reason = "no_transcript"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonParse            Reason = "parse"
)

// Failure is a tagged, non-fatal node failure.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f == nil {
		return "node failure"
	}
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// FailurePolicy decides what Run does with a Failure.
type FailurePolicy string

const (
	// PolicySuppress logs the failure and returns the zero output.
	PolicySuppress FailurePolicy = "suppress"
	// PolicyPropagate returns the failure as an error.
	PolicyPropagate FailurePolicy = "propagate"
)

// Valid reports whether p is a known policy. Empty means suppress.
func (p FailurePolicy) Valid() bool {
	switch p {
	case "", PolicySuppress, PolicyPropagate:
		return true
	}
	return false
}
