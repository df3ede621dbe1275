package ids

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	callIDPattern = regexp.MustCompile(`^\d{8}_\d{6}_[A-Za-z0-9]{8}$`)
	runIDPattern  = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)
)

// NewRunID returns a fresh time-sortable run identifier (ULID).
func NewRunID() string {
	return ulid.Make().String()
}

// IsValidRunID reports whether s is a 26-character Crockford Base32 ULID.
func IsValidRunID(s string) bool {
	return runIDPattern.MatchString(s)
}

// CallID derives the internal call identifier from the call's last-update
// timestamp and its externally issued GUID. The format is
// YYYYMMDD_HHMMSS_<first 8 characters of the GUID>, e.g.
// "20240822_054336_71da9579".
func CallID(lastUpdateMS int64, callGUID string) (string, error) {
	if len(callGUID) < 8 {
		return "", fmt.Errorf("call GUID must have at least 8 characters: %q", callGUID)
	}
	if lastUpdateMS <= 0 {
		return "", fmt.Errorf("last update timestamp must be positive: %d", lastUpdateMS)
	}
	stamp := time.UnixMilli(lastUpdateMS).UTC().Format("20060102_150405")
	return stamp + "_" + callGUID[:8], nil
}

// IsValidCallID reports whether s matches the derived call identifier format.
func IsValidCallID(s string) bool {
	return callIDPattern.MatchString(s)
}

// TimestampFromCallID extracts the UTC timestamp encoded in a call identifier.
func TimestampFromCallID(callID string) (time.Time, error) {
	if !IsValidCallID(callID) {
		return time.Time{}, fmt.Errorf("invalid call id: %q", callID)
	}
	return time.ParseInLocation("20060102_150405", callID[:15], time.UTC)
}

// CallIDBase extracts the GUID prefix from a call identifier.
func CallIDBase(callID string) (string, error) {
	if !IsValidCallID(callID) {
		return "", fmt.Errorf("invalid call id: %q", callID)
	}
	return callID[len(callID)-8:], nil
}

// SequenceRef identifies one sibling recording for sequence assignment.
type SequenceRef struct {
	ID     string
	DateMS int64
}

// AssignSequence maps each sibling recording's external id to its derived
// identifier: the call id plus a zero-padded _pNN suffix. Siblings are
// numbered by (date ascending, external id ascending); the tie-break on id
// keeps the numbering reproducible across fetches.
func AssignSequence(callID string, refs []SequenceRef) (map[string]string, error) {
	if callID == "" {
		return nil, fmt.Errorf("call id must not be empty")
	}
	if len(refs) == 0 {
		return map[string]string{}, nil
	}
	ordered := make([]SequenceRef, len(refs))
	copy(ordered, refs)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].DateMS != ordered[j].DateMS {
			return ordered[i].DateMS < ordered[j].DateMS
		}
		return ordered[i].ID < ordered[j].ID
	})

	out := make(map[string]string, len(ordered))
	for i, ref := range ordered {
		out[ref.ID] = fmt.Sprintf("%s_p%02d", callID, i+1)
	}
	return out, nil
}
