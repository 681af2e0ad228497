// Package stream folds a sequence of partial chat responses into one
// cumulative response, preserving block order and identity.
package stream

import (
	"context"

	"github.com/switchboardai/switchboard/pkg/chat"
)

// Accumulator combines deltas in arrival order. It starts empty and holds
// state only for the lifetime of one logical response; create a fresh one
// per stream.
//
// Merge rules:
//   - A delta addressing an existing block index merges into that block:
//     text fragments concatenate, tool argument fragments concatenate onto
//     the raw argument string.
//   - A delta addressing an index at or past the current block count appends
//     a new block seeded from the fragment; indices never leave gaps.
//   - ID, model, and role are first-write-wins. Stop reason, stop sequence,
//     and usage take the latest non-empty value: the delta near the end of
//     the stream is authoritative for why generation stopped.
type Accumulator struct {
	combined chat.Response
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add folds one response into the accumulator and returns the combined
// response so far. A complete (non-delta) response replaces the accumulated
// state, which covers the degenerate non-streaming case.
func (a *Accumulator) Add(resp *chat.Response) *chat.Response {
	if resp == nil || resp.Err != nil {
		return a.Response()
	}

	if !resp.IsDelta() {
		a.combined = *resp
		return a.Response()
	}

	a.mergeScalars(resp)
	a.mergeBlock(resp.Delta)

	return a.Response()
}

// Response returns a copy of the combined response accumulated so far.
func (a *Accumulator) Response() *chat.Response {
	combined := a.combined
	combined.Blocks = make([]chat.Block, len(a.combined.Blocks))
	copy(combined.Blocks, a.combined.Blocks)
	return &combined
}

func (a *Accumulator) mergeScalars(resp *chat.Response) {
	if a.combined.ID == "" {
		a.combined.ID = resp.ID
	}
	if a.combined.Model == "" {
		a.combined.Model = resp.Model
	}
	if a.combined.Role == "" {
		a.combined.Role = resp.Role
	}
	if resp.StopReason != "" {
		a.combined.StopReason = resp.StopReason
	}
	if resp.StopSequence != "" {
		a.combined.StopSequence = resp.StopSequence
	}
	if resp.Usage != nil {
		usage := *resp.Usage
		a.combined.Usage = &usage
	}
}

func (a *Accumulator) mergeBlock(delta *chat.Delta) {
	if delta.Index == nil {
		return
	}
	i := *delta.Index

	if i < len(a.combined.Blocks) {
		block := &a.combined.Blocks[i]
		switch block.Type {
		case chat.BlockTypeText:
			block.Text += delta.Text
		case chat.BlockTypeToolUse:
			block.Arguments += delta.PartialArgs
			// A fragment without an id keeps the id already known.
			if block.ID == "" {
				block.ID = delta.ToolID
			}
			if block.Name == "" {
				block.Name = delta.ToolName
			}
		}
		return
	}

	// New block. Indices are monotonically non-decreasing, so an index at
	// or beyond the current length appends, never creates a gap.
	if delta.ToolName != "" || delta.ToolID != "" {
		a.combined.Blocks = append(a.combined.Blocks,
			chat.ToolUseBlock(delta.ToolID, delta.ToolName, delta.PartialArgs))
		return
	}
	a.combined.Blocks = append(a.combined.Blocks, chat.TextBlock(delta.Text))
}

// Collect drains a response stream through a fresh accumulator and returns
// the final combined response. It stops early when ctx is cancelled.
func Collect(ctx context.Context, ch <-chan *chat.Response) (*chat.Response, error) {
	acc := NewAccumulator()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-ch:
			if !ok {
				return acc.Response(), nil
			}
			if resp.Err != nil {
				return nil, resp.Err
			}
			acc.Add(resp)
		}
	}
}
