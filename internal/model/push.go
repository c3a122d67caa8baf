package model

import "time"

// RenderConfig carries format-specific rendering options. It is opaque to
// everything except the Renderer.
type RenderConfig struct {
	CSVDelimiter  rune
	CSVQuoteAll   bool
	JSONPrefix    string
	JSONDelimiter string
	JSONSuffix    string
}

// DefaultRenderConfig returns the conventional comma-delimited CSV /
// newline-delimited JSON-lines configuration.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		CSVDelimiter:  ',',
		JSONDelimiter: "\n",
	}
}

// PushSpec is the caller-supplied configuration for a single push.
type PushSpec struct {
	Columns         []ColumnMeta
	DestinationPath ResourcePath
	Format          ResultType
	Limit           *uint64
}

// StatusKind discriminates the tagged PushStatus variant.
type StatusKind int

const (
	StatusRunning StatusKind = iota
	StatusFinished
	StatusCanceled
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusRunning:
		return "Running"
	case StatusFinished:
		return "Finished"
	case StatusCanceled:
		return "Canceled"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrorInfo is the message-bearing opaque cause of a Failed push,
// accessible via destination_status without exposing the underlying
// error type across the pipeline/registry boundary.
type ErrorInfo struct {
	Message string
}

// PushStatus is the tagged variant described by spec §3: Running carries
// only Since; the terminal variants also carry Until, and Failed carries
// Cause.
type PushStatus struct {
	Kind  StatusKind
	Since time.Time
	Until time.Time
	Cause *ErrorInfo
}

func RunningStatus(since time.Time) PushStatus {
	return PushStatus{Kind: StatusRunning, Since: since}
}

func FinishedStatus(since, until time.Time) PushStatus {
	return PushStatus{Kind: StatusFinished, Since: since, Until: until}
}

func CanceledStatus(since, until time.Time) PushStatus {
	return PushStatus{Kind: StatusCanceled, Since: since, Until: until}
}

func FailedStatus(since, until time.Time, cause error) PushStatus {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return PushStatus{Kind: StatusFailed, Since: since, Until: until, Cause: &ErrorInfo{Message: msg}}
}

// Terminal reports whether the status is one of Finished/Canceled/Failed.
func (s PushStatus) Terminal() bool {
	return s.Kind != StatusRunning
}

// PushRecord is the Registry's per-key record: the spec that started the
// push, its admission time, and its current lifecycle status. Records
// are replaced, never mutated in place, across a start/terminal-update
// boundary — the Registry stores *PushRecord values and swaps pointers.
type PushRecord struct {
	Key       PushKey
	Spec      PushSpec
	StartedAt time.Time
	Status    PushStatus
}

// Clone returns a shallow copy safe to hand to a caller without aliasing
// the Registry's internal pointer.
func (r PushRecord) Clone() PushRecord {
	spec := r.Spec
	spec.Columns = append([]ColumnMeta(nil), r.Spec.Columns...)
	return PushRecord{Key: r.Key, Spec: spec, StartedAt: r.StartedAt, Status: r.Status}
}
