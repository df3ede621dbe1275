// Package testsupport provides shared helpers for package tests: temp-dir
// backed configs, store setup and record seeding.
package testsupport
