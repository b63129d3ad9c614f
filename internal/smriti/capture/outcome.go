package capture

import (
	"fmt"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
)

// OutcomeKind classifies how far a save got.
type OutcomeKind int

const (
	// PersistedRemoteAndLocal: the remote store acknowledged the write.
	PersistedRemoteAndLocal OutcomeKind = iota
	// PersistedLocalOnly: the remote write failed, the local cache has it.
	PersistedLocalOnly
	// RecoverableFailure: neither store took the record. The caller can
	// retry; the optimistic log entry is kept.
	RecoverableFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case PersistedRemoteAndLocal:
		return "persisted_remote_and_local"
	case PersistedLocalOnly:
		return "persisted_local_only"
	case RecoverableFailure:
		return "recoverable_failure"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one AddMemory call.
type Outcome struct {
	Kind    OutcomeKind
	Record  memory.Record
	TraceID string
	// DateResolved is true when the timestamp came from the text rather
	// than the capture clock.
	DateResolved bool

	RemoteErr error
	LocalErr  error
}

// Persisted reports whether at least one store holds the record.
func (o Outcome) Persisted() bool {
	return o.Kind != RecoverableFailure
}

// Reason describes a RecoverableFailure; it is empty otherwise.
func (o Outcome) Reason() string {
	if o.Kind != RecoverableFailure {
		return ""
	}
	return fmt.Sprintf("remote: %v; local: %v", o.RemoteErr, o.LocalErr)
}

func classify(remoteErr, localErr error) OutcomeKind {
	switch {
	case remoteErr == nil:
		return PersistedRemoteAndLocal
	case localErr == nil:
		return PersistedLocalOnly
	default:
		return RecoverableFailure
	}
}
