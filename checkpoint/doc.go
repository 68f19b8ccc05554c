// Package checkpoint persists the progress of a migration scan.
//
// A Checkpoint is stored as a single JSON blob, checkpoint_<account>, inside a stateful
// container named after the scan id. Every save overwrites the whole record; the blob is
// never deleted.
//
//	{
//	  "alreadyVisitedContainers": ["c1"],
//	  "lastContainerName": "c2",
//	  "continuationToken": "..."
//	}
package checkpoint
