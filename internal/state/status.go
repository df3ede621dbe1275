package state

import "strings"

// Status represents the processing lifecycle of a recording.
type Status string

const (
	// StatusPending marks a recording that has never been processed.
	StatusPending Status = "pending"
	// StatusDownloaded is the terminal success state.
	StatusDownloaded Status = "downloaded"
	// StatusFailedTransient marks a recoverable failure eligible for retry.
	StatusFailedTransient Status = "failed-transient"
	// StatusFailedPermanent marks a failure past the retry budget; only a
	// targeted re-run can touch the unit again.
	StatusFailedPermanent Status = "failed-permanent"
	// StatusQuarantined removes a unit from all automatic consideration.
	StatusQuarantined Status = "quarantined"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloaded,
	StatusFailedTransient,
	StatusFailedPermanent,
	StatusQuarantined,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no automatic transition leads out of the status.
func (s Status) IsTerminal() bool {
	return s == StatusFailedPermanent || s == StatusQuarantined
}
