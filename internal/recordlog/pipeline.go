package recordlog

import (
	"context"

	"kimberlite/internal/cryptoprim"
	"kimberlite/internal/ids"
)

// preparedBatch is the output of the CPU stage: fully framed bytes,
// ready to be written verbatim, plus the metadata AppendBatch needs to
// answer the caller once the I/O stage confirms durability.
type preparedBatch struct {
	ctx           context.Context
	base          ids.Offset
	frames        [][]byte
	finalHash     cryptoprim.Hash32
	expectedError error // set when the CPU stage itself rejected the batch
	resultCh      chan appendResult
}

type appendResult struct {
	base      ids.Offset
	finalHash cryptoprim.Hash32
	err       error
}

// pipeline runs the CPU stage (encode + chain hash + compression) and
// the I/O stage (write + fsync) on two independent goroutines joined
// by a depth-1 channel, so that the CPU stage for batch N+1 runs
// concurrently with the I/O stage's fsync for batch N. Semantics are
// identical to a fully synchronous single-threaded writer: batches are
// still committed strictly in submission order, and AppendBatch (built on
// top of this) blocks its caller until its own batch is durable.
type pipeline struct {
	prepareCh chan prepareRequest
	commitCh  chan preparedBatch
	done      chan struct{}
}

type prepareRequest struct {
	ctx           context.Context
	events        [][]byte
	expectedOff   ids.Offset
	compression   CompressionKind
	submittedOff  ids.Offset // the log's current optimistic write cursor
	baseForBatch  ids.Offset
	chainTip      cryptoprim.Hash32
	codec         Codec
	resultCh      chan appendResult
}

func newPipeline(commit func(preparedBatch)) *pipeline {
	p := &pipeline{
		prepareCh: make(chan prepareRequest, 1),
		commitCh:  make(chan preparedBatch, 1),
		done:      make(chan struct{}),
	}
	go p.prepareLoop()
	go p.commitLoop(commit)
	return p
}

func (p *pipeline) prepareLoop() {
	for req := range p.prepareCh {
		batch := prepare(req)
		p.commitCh <- batch
	}
	close(p.commitCh)
}

func (p *pipeline) commitLoop(commit func(preparedBatch)) {
	for batch := range p.commitCh {
		commit(batch)
	}
	close(p.done)
}

func (p *pipeline) submit(req prepareRequest) {
	p.prepareCh <- req
}

func (p *pipeline) close() {
	close(p.prepareCh)
	<-p.done
}

// prepare is the CPU stage: it turns raw events into fully framed,
// hash-chained, optionally compressed byte frames. It never touches
// disk.
func prepare(req prepareRequest) preparedBatch {
	if req.expectedOff != req.submittedOff {
		return preparedBatch{
			ctx: req.ctx,
			expectedError: &UnexpectedStreamOffsetError{
				Expected: uint64(req.expectedOff),
				Actual:   uint64(req.submittedOff),
			},
			resultCh: req.resultCh,
		}
	}

	tip := req.chainTip
	frames := make([][]byte, 0, len(req.events))
	for i, payload := range req.events {
		rec := Record{
			Offset:   req.baseForBatch.Add(uint64(i)),
			PrevHash: tip,
			Kind:     KindData,
			Payload:  payload,
		}
		frame, err := encode(rec, req.codec)
		if err != nil {
			return preparedBatch{ctx: req.ctx, expectedError: err, resultCh: req.resultCh}
		}
		tip = rec.Hash()
		frames = append(frames, frame)
	}

	return preparedBatch{
		ctx:       req.ctx,
		base:      req.baseForBatch,
		frames:    frames,
		finalHash: tip,
		resultCh:  req.resultCh,
	}
}
