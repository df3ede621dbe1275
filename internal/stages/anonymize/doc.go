// Package anonymize is the third pipeline stage: it redacts phone numbers,
// email addresses and IBANs from a transcribe run's transcripts, replacing
// each value with a deterministic tag and keeping a salted-hash vault map
// per recording for audits.
package anonymize
