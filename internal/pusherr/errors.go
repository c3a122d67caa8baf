// Package pusherr defines the exhaustive, value-typed error taxonomy
// surfaced by the push controller, matching the "errors as values, not
// exceptions" design of spec §7. These are distinct from pipeline
// failures (evaluator/render/sink errors), which never become a
// PushError and instead land on a PushRecord's Failed.Cause.
package pusherr

import (
	"fmt"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// Kind discriminates the PushError tagged variant.
type Kind int

const (
	KindDestinationNotFound Kind = iota
	KindTableNotFound
	KindFormatNotSupported
	KindPushAlreadyRunning
)

// PushError is the single exhaustive error type returned on the start/
// cancel/status surface. Construct one via the New* functions below;
// inspect it with the Is* helpers or a type switch on Kind.
type PushError struct {
	Kind Kind

	DestinationId model.DestinationId
	TableId       model.TableId
	TypeId        model.DestinationTypeId
	Format        model.ResultType
}

func (e *PushError) Error() string {
	switch e.Kind {
	case KindDestinationNotFound:
		return fmt.Sprintf("destination not found: %d", e.DestinationId)
	case KindTableNotFound:
		return fmt.Sprintf("table not found: %d", e.TableId)
	case KindFormatNotSupported:
		return fmt.Sprintf("format %q not supported by destination type %s", e.Format, e.TypeId)
	case KindPushAlreadyRunning:
		return fmt.Sprintf("push already running for table=%d destination=%d", e.TableId, e.DestinationId)
	default:
		return "unknown push error"
	}
}

func NewDestinationNotFound(id model.DestinationId) *PushError {
	return &PushError{Kind: KindDestinationNotFound, DestinationId: id}
}

func NewTableNotFound(id model.TableId) *PushError {
	return &PushError{Kind: KindTableNotFound, TableId: id}
}

func NewFormatNotSupported(typeId model.DestinationTypeId, format model.ResultType) *PushError {
	return &PushError{Kind: KindFormatNotSupported, TypeId: typeId, Format: format}
}

func NewPushAlreadyRunning(tableId model.TableId, destId model.DestinationId) *PushError {
	return &PushError{Kind: KindPushAlreadyRunning, TableId: tableId, DestinationId: destId}
}

// Is allows errors.Is(err, pusherr.KindPushAlreadyRunning) style checks
// by comparing Kind when the target is also a *PushError.
func (e *PushError) Is(target error) bool {
	t, ok := target.(*PushError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
