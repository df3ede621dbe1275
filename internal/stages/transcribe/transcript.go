package transcribe

// Segment is one time-aligned span of recognized speech.
type Segment struct {
	StartS     float64 `json:"start_s"`
	EndS       float64 `json:"end_s"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the normalized per-recording ASR output. One JSON file per
// recording lands under data/transcripts/ in the run directory, plus a
// transcripts.jsonl index over all of them.
type Transcript struct {
	RecordingID string    `json:"recording_id"`
	CallID      string    `json:"call_id"`
	Language    string    `json:"language"`
	Model       string    `json:"model"`
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments"`
	DurationS   float64   `json:"duration_s"`
}
