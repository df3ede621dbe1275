// Package ids derives the stable identifiers used across pipeline stages:
// call ids built from the call's last-update timestamp and GUID, recording
// ids numbered deterministically within a call, and ULID run ids.
package ids
