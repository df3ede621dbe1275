package source

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"callpipe/internal/ids"
	"callpipe/internal/services"
)

// UTCFromMS converts a UTC epoch millisecond timestamp to the pipeline's
// ISO form, e.g. 1724305416000 -> "2024-08-22T05:43:36Z".
func UTCFromMS(ms int64) (string, error) {
	if ms < 0 {
		return "", fmt.Errorf("timestamp must be non-negative: %d", ms)
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05Z"), nil
}

// NormalizeCall converts a raw call task into internal metadata with derived
// identifiers. The GUID must be a well-formed UUID; the upstream API issues
// nothing else and a malformed one means the payload is corrupt.
func NormalizeCall(task CallTask) (CallMeta, error) {
	if task.GUID == "" || task.LastUpdateMS <= 0 {
		return CallMeta{}, services.Wrap(services.ErrValidation, "ingest", "normalize_call",
			"call task requires id and lastUpdate", nil)
	}
	if _, err := uuid.Parse(task.GUID); err != nil {
		return CallMeta{}, services.Wrap(services.ErrValidation, "ingest", "normalize_call",
			fmt.Sprintf("call guid %q is not a UUID", task.GUID), err)
	}

	callID, err := ids.CallID(task.LastUpdateMS, task.GUID)
	if err != nil {
		return CallMeta{}, services.Wrap(services.ErrValidation, "ingest", "normalize_call", "derive call id", err)
	}
	callTs, err := UTCFromMS(task.LastUpdateMS)
	if err != nil {
		return CallMeta{}, services.Wrap(services.ErrValidation, "ingest", "normalize_call", "convert timestamp", err)
	}

	return CallMeta{
		CallID:       callID,
		CallGUID:     task.GUID,
		LastUpdateMS: task.LastUpdateMS,
		CallTsUTC:    callTs,
	}, nil
}

// BuildRecordingMeta normalizes a call's recordings. Recordings without a
// date are skipped (they are still being assembled upstream); the rest are
// numbered _p01, _p02, ... by (date, id) so re-fetches produce the same
// identifiers. Results come back in sequence order.
func BuildRecordingMeta(call CallMeta, refs []RecordingRef) ([]RecordingMeta, error) {
	if call.CallID == "" {
		return nil, fmt.Errorf("call metadata missing call_id")
	}

	valid := make([]RecordingRef, 0, len(refs))
	for _, ref := range refs {
		if ref.DateMS == nil || *ref.DateMS < 0 {
			continue
		}
		valid = append(valid, ref)
	}
	if len(valid) == 0 {
		return nil, nil
	}

	seqRefs := make([]ids.SequenceRef, 0, len(valid))
	for _, ref := range valid {
		seqRefs = append(seqRefs, ids.SequenceRef{ID: ref.ID, DateMS: *ref.DateMS})
	}
	mapping, err := ids.AssignSequence(call.CallID, seqRefs)
	if err != nil {
		return nil, fmt.Errorf("assign recording sequence: %w", err)
	}

	sort.Slice(valid, func(i, j int) bool {
		if *valid[i].DateMS != *valid[j].DateMS {
			return *valid[i].DateMS < *valid[j].DateMS
		}
		return valid[i].ID < valid[j].ID
	})

	out := make([]RecordingMeta, 0, len(valid))
	for _, ref := range valid {
		ts, err := UTCFromMS(*ref.DateMS)
		if err != nil {
			return nil, fmt.Errorf("recording %s: %w", ref.ID, err)
		}
		out = append(out, RecordingMeta{
			SourceID:        ref.ID,
			CallGUID:        call.CallGUID,
			RecordingID:     mapping[ref.ID],
			RecordingDateMS: *ref.DateMS,
			RecordingTsUTC:  ts,
			DurationS:       ref.DurationS,
			Available:       ref.Available,
			SizeBytes:       ref.SizeBytes,
			ContentETag:     ref.ContentETag,
		})
	}
	return out, nil
}
