package recordlog

import (
	"context"
	"fmt"
	"sync"

	"kimberlite/internal/cryptoprim"
	"kimberlite/internal/ids"
	"kimberlite/internal/ioengine"
)

// Log is one stream's append-only, hash-chained record file plus its
// offset index. A Log has exactly one writer; reads are safe from any
// number of concurrent goroutines.
type Log struct {
	backend  ioengine.Backend
	registry *CodecRegistry

	dataHandle ioengine.Handle
	index      *offsetIndex

	mu            sync.Mutex // guards submittedOffset/chainTip (CPU-stage state)
	submittedOff  ids.Offset
	chainTip      cryptoprim.Hash32

	ioMu          sync.Mutex // guards durableOff/writePos (I/O-stage state)
	durableOff    ids.Offset
	writePos      int64
	fatal         error // set once an I/O error poisons this writer

	pipe *pipeline
}

// Open opens (or creates) the data and index files for a stream at the
// given paths and replays the existing chain to recover its tip hash
// and offset. Any corruption found during replay truncates the log at
// the last good record.
func Open(ctx context.Context, backend ioengine.Backend, dataPath, indexPath string, registry *CodecRegistry) (*Log, error) {
	dataHandle, err := backend.Open(ctx, dataPath, ioengine.OpenReadWrite)
	if err != nil {
		return nil, fmt.Errorf("recordlog: open data file: %w", err)
	}
	idx, err := openOffsetIndex(ctx, backend, indexPath)
	if err != nil {
		return nil, err
	}

	l := &Log{
		backend:    backend,
		registry:   registry,
		dataHandle: dataHandle,
		index:      idx,
	}
	if err := l.recover(ctx); err != nil {
		return nil, err
	}
	l.pipe = newPipeline(l.commit)
	return l, nil
}

// recover replays the data file from the start, verifying CRC and the
// hash chain, and rebuilds the offset index if it disagreed with the
// data file. A corrupted record truncates the log (and the index) at
// the last good offset.
func (l *Log) recover(ctx context.Context) error {
	size, err := l.dataHandle.Size()
	if err != nil {
		return fmt.Errorf("recordlog: stat data file: %w", err)
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err := l.dataHandle.ReadAt(ctx, 0, buf); err != nil {
			return fmt.Errorf("recordlog: read data file: %w", err)
		}
	}

	var tip cryptoprim.Hash32
	var offset ids.Offset
	var pos int64
	rebuiltIndex := make([]int64, 0)
	for pos < int64(len(buf)) {
		frame, ferr := decodeFrame(buf[pos:], l.registry)
		if ferr != nil {
			// Stop at the first bad frame: everything before it is
			// durable and good, everything from here on is discarded.
			break
		}
		if frame.record.PrevHash != tip {
			// Either a genuine chain break, or a mid-chain record
			// falsely claiming the all-zero genesis seed.
			break
		}
		rebuiltIndex = append(rebuiltIndex, pos)
		tip = frame.record.Hash()
		pos += int64(frame.totalSize)
		offset++
	}

	l.index.positions = rebuiltIndex
	l.submittedOff = offset
	l.durableOff = offset
	l.chainTip = tip
	l.writePos = pos
	return nil
}

// AppendBatch is the one write operation: it fails with
// UnexpectedStreamOffset unless expectedOffset matches the log's
// current offset, otherwise it durably appends one framed record per
// event and returns the offset of the batch's first record and the
// hash of its last record.
func (l *Log) AppendBatch(ctx context.Context, events [][]byte, expectedOffset ids.Offset, compression CompressionKind) (ids.Offset, cryptoprim.Hash32, error) {
	resultCh := make(chan appendResult, 1)

	l.mu.Lock()
	if l.fatal != nil {
		l.mu.Unlock()
		return 0, cryptoprim.Hash32{}, l.fatal
	}
	codec, ok := l.registry.Get(compression)
	if !ok {
		l.mu.Unlock()
		return 0, cryptoprim.Hash32{}, fmt.Errorf("%w: %d", ErrInvalidCompressionKind, compression)
	}
	req := prepareRequest{
		ctx:          ctx,
		events:       events,
		expectedOff:  expectedOffset,
		submittedOff: l.submittedOff,
		baseForBatch: l.submittedOff,
		chainTip:     l.chainTip,
		codec:        codec,
		resultCh:     resultCh,
	}
	if expectedOffset == l.submittedOff && len(events) > 0 {
		// Optimistically advance the CPU-stage cursor so the next
		// AppendBatch call's prepare stage can run concurrently with
		// this batch's I/O stage.
		l.submittedOff = l.submittedOff.Add(uint64(len(events)))
	}
	l.mu.Unlock()

	l.pipe.submit(req)
	res := <-resultCh
	return res.base, res.finalHash, res.err
}

// commit is the I/O stage: it writes a prepared batch's frames, fsyncs
// the data file then the index file, and reports the result. A write
// or fsync error poisons the log: all subsequent AppendBatch calls
// fail immediately, and the writer needs operator intervention.
func (l *Log) commit(batch preparedBatch) {
	if batch.expectedError != nil {
		batch.resultCh <- appendResult{err: batch.expectedError}
		return
	}

	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	if l.fatal != nil {
		batch.resultCh <- appendResult{err: l.fatal}
		return
	}

	for _, frame := range batch.frames {
		if _, err := l.dataHandle.Write(batch.ctx, frame); err != nil {
			l.fatal = fmt.Errorf("recordlog: fatal write error: %w", err)
			batch.resultCh <- appendResult{err: l.fatal}
			return
		}
		if err := l.index.append(batch.ctx, l.writePos); err != nil {
			l.fatal = fmt.Errorf("recordlog: fatal index error: %w", err)
			batch.resultCh <- appendResult{err: l.fatal}
			return
		}
		l.writePos += int64(len(frame))
	}

	if err := l.dataHandle.Fsync(batch.ctx); err != nil {
		l.fatal = fmt.Errorf("recordlog: fatal fsync error (data): %w", err)
		batch.resultCh <- appendResult{err: l.fatal}
		return
	}
	if err := l.index.fsync(batch.ctx); err != nil {
		l.fatal = fmt.Errorf("recordlog: fatal fsync error (index): %w", err)
		batch.resultCh <- appendResult{err: l.fatal}
		return
	}

	l.durableOff = l.durableOff.Add(uint64(len(batch.frames)))
	l.chainTip = batch.finalHash
	batch.resultCh <- appendResult{base: batch.base, finalHash: batch.finalHash}
}

// CurrentOffset returns the number of durably-appended records, which
// is also the offset the next appended record will take.
func (l *Log) CurrentOffset() ids.Offset {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()
	return l.durableOff
}

// Close stops the background pipeline and closes the underlying
// handle. It does not fsync; callers that need a final durability
// guarantee should ensure all AppendBatch calls have returned first.
func (l *Log) Close() error {
	l.pipe.close()
	return l.dataHandle.Close()
}

// Read yields (offset, payload) pairs for records in [from, to) in
// offset order, decompressing payloads transparently. A stored CRC
// mismatch fails with ErrCorruptedRecord.
func (l *Log) Read(ctx context.Context, from, to ids.Offset) ([]Record, error) {
	if to < from {
		return nil, fmt.Errorf("recordlog: invalid range [%d, %d)", from, to)
	}
	l.ioMu.Lock()
	startPos, ok := l.index.positionOf(from)
	l.ioMu.Unlock()
	if !ok {
		if from == to {
			return nil, nil
		}
		return nil, fmt.Errorf("recordlog: offset %d not found", from)
	}

	size, err := l.dataHandle.Size()
	if err != nil {
		return nil, fmt.Errorf("recordlog: stat data file: %w", err)
	}
	buf := make([]byte, size-startPos)
	if _, err := l.dataHandle.ReadAt(ctx, startPos, buf); err != nil {
		return nil, fmt.Errorf("recordlog: read: %w", err)
	}

	var out []Record
	pos := 0
	for offset := from; offset < to; offset++ {
		frame, err := decodeFrame(buf[pos:], l.registry)
		if err != nil {
			return nil, err
		}
		out = append(out, frame.record)
		pos += frame.totalSize
	}
	return out, nil
}

// Verify walks the chain over [from, to), recomputing prev_hash and
// CRC for every record; any mismatch is a hard failure naming the
// first bad offset.
func (l *Log) Verify(ctx context.Context, from, to ids.Offset) error {
	records, err := l.Read(ctx, from, to)
	if err != nil {
		return err
	}
	var tip cryptoprim.Hash32
	if from > 0 {
		prevBatch, err := l.Read(ctx, from-1, from)
		if err != nil {
			return err
		}
		if len(prevBatch) == 1 {
			tip = prevBatch[0].Hash()
		}
	}
	for _, r := range records {
		if r.PrevHash != tip {
			return fmt.Errorf("%w: offset %d: chain mismatch", ErrCorruptedRecord, r.Offset)
		}
		tip = r.Hash()
	}
	return nil
}
