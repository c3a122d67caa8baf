package model

import "context"

// ResourcePath is the destination-specific path or object key a push
// writes to.
type ResourcePath string

// Sink is a consumer of a rendered byte stream for one ResultType. A
// Destination exposes a non-empty ordered sequence of Sinks; the
// Controller selects the one whose ResultType matches the requested
// push format.
type Sink interface {
	ResultType() ResultType
	Consume(ctx context.Context, path ResourcePath, columns []ColumnMeta, bytes ByteStream) error
}

// Destination is polymorphic over a capability set: at minimum it names
// its DestinationTypeId and the Sinks it supports.
type Destination struct {
	Id     DestinationId
	TypeId DestinationTypeId
	Sinks  []Sink
}

// SinkFor returns the Sink matching format, or (nil, false) if the
// destination does not support it.
func (d Destination) SinkFor(format ResultType) (Sink, bool) {
	for _, s := range d.Sinks {
		if s.ResultType() == format {
			return s, true
		}
	}
	return nil, false
}
