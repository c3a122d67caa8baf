// Package model defines the data types shared by the push lifecycle
// manager: table and destination references, push specifications, and
// push status records.
package model

import "fmt"

// TableId identifies a TableRef within the table store.
type TableId int64

// DestinationId identifies a Destination within the destination store.
type DestinationId int64

// DestinationTypeId names a destination implementation and its version,
// e.g. ("gcs", "v1").
type DestinationTypeId struct {
	Name    string
	Version string
}

func (d DestinationTypeId) String() string {
	return fmt.Sprintf("%s/%s", d.Name, d.Version)
}

// PushKey is the admission, cancellation, and status-lookup key: one
// table pushed to one destination.
type PushKey struct {
	TableId       TableId
	DestinationId DestinationId
}

func (k PushKey) String() string {
	return fmt.Sprintf("push(table=%d,dest=%d)", k.TableId, k.DestinationId)
}

// ResultType is a serialization format a Sink can accept.
type ResultType string

const (
	ResultCSV  ResultType = "csv"
	ResultJSON ResultType = "json"
)
