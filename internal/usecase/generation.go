package usecase

import "errors"

// FailureKind tags why a generation call produced no usable text.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTransport
	FailureFormat
	FailureReported
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransport:
		return "transport"
	case FailureFormat:
		return "format"
	case FailureReported:
		return "reported"
	default:
		return "unknown"
	}
}

const (
	transportFallback = "Sorry, I'm having trouble reaching the assistant right now. Please try again in a moment."
	formatFallback    = "Sorry, I couldn't understand the response."
	reportedPrefix    = "Error from the text generation service: "
)

type upstreamReporter interface {
	UpstreamMessage() string
}

type malformedPayload interface {
	MalformedPayload() bool
}

type generationResult struct {
	Text string
	Kind FailureKind
	// Message is the upstream's own wording for FailureReported.
	Message string
	Err     error
}

func failedGeneration(err error) generationResult {
	res := generationResult{Kind: FailureTransport, Err: err}
	var reported upstreamReporter
	var malformed malformedPayload
	switch {
	case errors.As(err, &reported):
		res.Kind = FailureReported
		res.Message = reported.UpstreamMessage()
	case errors.As(err, &malformed) && malformed.MalformedPayload():
		res.Kind = FailureFormat
	}
	return res
}

func (r generationResult) fallbackReply() string {
	switch r.Kind {
	case FailureReported:
		return reportedPrefix + r.Message
	case FailureFormat:
		return formatFallback
	default:
		return transportFallback
	}
}
