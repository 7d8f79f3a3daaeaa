package runtime

import (
	"context"

	"kimberlite/internal/ids"
)

// ReadStream returns the raw events appended to streamId in [from, to),
// in order. It is the low-level counterpart to Query/QueryAt: callers
// that want a stream's own events rather than a table's materialized
// rows (e.g. an audit trail, or a stream with no backing table) use
// this directly.
func (r *Runtime) ReadStream(ctx context.Context, streamId ids.StreamId, from, to ids.Offset) ([][]byte, error) {
	r.mu.Lock()
	log, err := r.openStreamLog(ctx, streamId)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	records, err := log.Read(ctx, from, to)
	if err != nil {
		return nil, err
	}
	events := make([][]byte, len(records))
	for i, rec := range records {
		events[i] = rec.Payload
	}
	return events, nil
}

// VerifyStream checks the hash chain and CRC framing of streamId's
// records in [from, to), the same check recover() runs implicitly when
// a log is opened.
func (r *Runtime) VerifyStream(ctx context.Context, streamId ids.StreamId, from, to ids.Offset) error {
	r.mu.Lock()
	log, err := r.openStreamLog(ctx, streamId)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return log.Verify(ctx, from, to)
}
