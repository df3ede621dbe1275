package state

import "time"

// UpsertResult reports what an upsert did to the underlying row.
type UpsertResult string

const (
	Inserted  UpsertResult = "inserted"
	Updated   UpsertResult = "updated"
	Unchanged UpsertResult = "unchanged"
)

// Call is a container row: one source call owning zero or more recordings.
type Call struct {
	GUID         string
	CallID       string
	LastUpdateMS int64
	SeenAtUTC    time.Time
	FirstSeenUTC time.Time
}

// Recording is a unit row tracked through the status state machine.
type Recording struct {
	GUID            string
	CallGUID        string
	RecordingID     string
	RecordingDateMS int64
	SizeBytes       *int64
	ContentETag     string
	Status          Status
	RetryCount      int
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
}

// Stats aggregates store contents for diagnostics and metrics.
type Stats struct {
	Calls      int
	Recordings int
	ByStatus   map[Status]int
}
