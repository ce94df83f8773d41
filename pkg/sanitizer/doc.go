// Package sanitizer normalizes free-form catalog and identity input before
// validation and storage.
//
// All functions are idempotent. Invalid input yields an empty string rather
// than an error, leaving rejection to the validator.
package sanitizer
