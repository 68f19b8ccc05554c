// Package scanner verifies that a storage migration is complete.
//
// A Scanner lists every container of a target account and every blob in it, one page at
// a time, and saves a checkpoint after each page and after each drained container. When
// interrupted, the next run skips containers that were fully scanned and resumes the
// partially scanned one from its saved continuation token. Blobs of the last unsaved page
// may be visited twice; none is skipped.
//
// With a tag name configured, the first blob whose tag is missing or differs from the
// expected value halts the scan with a *MigrationIncompleteError.
package scanner
