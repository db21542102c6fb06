package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/cukemsg/messages"
)

// ErrNoMessagesFound is returned when no message records match the query.
var ErrNoMessagesFound = errors.New("no message records found")

// recordKey identifies one stored envelope. A batch rewritten after an
// ambiguous write failure reuses its seq values, so the rewrite collapses
// onto the first copy.
type recordKey struct {
	runID string
	seq   int64
}

// ReadMessages returns every stored envelope for runID, ordered by the
// sequence the sink assigned at write time. An empty runID matches all
// runs; runs are then ordered by first appearance.
//
// An envelope stored more than once under the same run and seq is returned
// once. Distinct envelopes with identical content are kept.
func ReadMessages(ctx context.Context, ds lode.Dataset, runID string) ([]*messages.Envelope, error) {
	type stored struct {
		key recordKey
		env *messages.Envelope
	}

	runOrder := make(map[string]int)
	seen := make(map[recordKey]struct{})
	var out []stored
	err := eachRecord(ctx, ds, runID, func(record map[string]any) error {
		seq, err := recordSeq(record)
		if err != nil {
			return err
		}
		key := recordKey{runID: toString(record["run_id"]), seq: seq}
		if _, dup := seen[key]; dup {
			return nil
		}
		env, err := envelopeFromRecord(record)
		if err != nil {
			return err
		}
		seen[key] = struct{}{}
		if _, ok := runOrder[key.runID]; !ok {
			runOrder[key.runID] = len(runOrder)
		}
		out = append(out, stored{key: key, env: env})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, ErrNoMessagesFound
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := runOrder[out[i].key.runID], runOrder[out[j].key.runID]
		if ri != rj {
			return ri < rj
		}
		return out[i].key.seq < out[j].key.seq
	})

	envs := make([]*messages.Envelope, len(out))
	for i, s := range out {
		envs[i] = s.env
	}
	return envs, nil
}

// nextSeq returns one past the highest seq stored for runID, or zero for a
// run with no records.
func nextSeq(ctx context.Context, ds lode.Dataset, runID string) (int64, error) {
	var next int64
	err := eachRecord(ctx, ds, runID, func(record map[string]any) error {
		seq, err := recordSeq(record)
		if err != nil {
			return err
		}
		if seq >= next {
			next = seq + 1
		}
		return nil
	})
	return next, err
}

// eachRecord calls fn for every message record of runID, snapshots oldest
// first. An empty runID matches all runs.
func eachRecord(ctx context.Context, ds lode.Dataset, runID string, fn func(map[string]any) error) error {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return wrapError(err, "read", string(ds.ID()))
	}

	for _, snap := range snapshots {
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return wrapError(err, "read", fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != RecordKindMessage {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			if err := fn(record); err != nil {
				return err
			}
		}
	}
	return nil
}
