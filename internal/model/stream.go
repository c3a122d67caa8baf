package model

// Row is one evaluated record, with values ordered to match a TableRef's
// Columns.
type Row []any

// Chunk is one element of a lazily produced byte stream. A Chunk carrying
// a non-nil Err is always the last value sent on the channel and signals
// that the stream terminated abnormally; the channel is closed immediately
// after. A stream that completes normally simply closes its channel.
type Chunk struct {
	Data []byte
	Err  error
}

// ByteStream is a pull-based, back-pressured lazy byte stream: consumers
// range over the channel, producers close it on completion. Cancellation
// is expressed by the producer observing ctx.Done() at a send boundary
// and returning without sending further chunks.
type ByteStream <-chan Chunk

// RowEvent is one element of a RowStream. Like Chunk, a RowEvent
// carrying a non-nil Err is always the last value sent and signals a
// mid-stream evaluator failure; the channel is closed immediately after.
type RowEvent struct {
	Row Row
	Err error
}

// RowStream is the evaluator's lazily produced, finite sequence of rows.
type RowStream <-chan RowEvent
