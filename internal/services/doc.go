// Package services holds the shared failure taxonomy for external
// collaborators (source API, transcription engine, uploader) and the context
// annotations stages attach for structured logging.
package services
