package source

// CallTask is a completed call as the upstream telephony API reports it.
// Only the fields the pipeline consumes are mapped; the raw payload is kept
// for the audit snapshot.
type CallTask struct {
	GUID         string         `json:"id"`
	LastUpdateMS int64          `json:"lastUpdate"`
	Raw          map[string]any `json:"-"`
}

// RecordingRef is one recording attached to a call. DateMS is a pointer
// because the API omits the date for recordings that are still being
// assembled; those are skipped during normalization.
type RecordingRef struct {
	ID          string  `json:"id"`
	DateMS      *int64  `json:"date"`
	DurationS   float64 `json:"duration"`
	Available   bool    `json:"available"`
	SizeBytes   *int64  `json:"size"`
	ContentETag string  `json:"etag"`
}

// CallMeta is the normalized form of a CallTask with derived identifiers
// and UTC timestamps.
type CallMeta struct {
	CallID       string `json:"call_id"`
	CallGUID     string `json:"call_guid"`
	LastUpdateMS int64  `json:"last_update_ms"`
	CallTsUTC    string `json:"call_ts_utc"`
}

// RecordingMeta is the normalized form of a RecordingRef with its derived
// sequence identifier.
type RecordingMeta struct {
	SourceID        string  `json:"source_recording_id"`
	CallGUID        string  `json:"call_guid"`
	RecordingID     string  `json:"recording_id"`
	RecordingDateMS int64   `json:"recording_date_ms"`
	RecordingTsUTC  string  `json:"recording_ts_utc"`
	DurationS       float64 `json:"duration_s"`
	Available       bool    `json:"available"`
	SizeBytes       *int64  `json:"size_bytes,omitempty"`
	ContentETag     string  `json:"content_etag,omitempty"`
}
