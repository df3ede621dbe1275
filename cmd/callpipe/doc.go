// Command callpipe is the pipeline CLI: ingest, transcribe, anonymize and
// format stages plus store and run inspection.
package main
