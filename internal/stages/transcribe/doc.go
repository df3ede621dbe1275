// Package transcribe is the second pipeline stage: it feeds an ingest run's
// audio through an ASR engine and writes one normalized transcript per
// recording plus a transcripts.jsonl index.
package transcribe
