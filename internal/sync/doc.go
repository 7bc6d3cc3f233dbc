// Package sync merges remote COROS resources into the local JSON store.
//
// # Overview
//
// A run processes three resources in order, each independently:
//
//	activities  paginated, newest first; merged by labelId
//	analyse     daily-metrics bundle; merged by happenDay
//	dashboard   snapshot; replaced
//
// and then rewrites fetch_meta.json.
//
// # Activities
//
// The set of stored labelIds is the dedup key. Pages are requested from 1
// and pagination stops at the first page that is empty, holds no new
// record, or is only partly new, or when totalPage has been reached. A
// record without a labelId counts as neither new nor known; it is skipped
// and the step reports an error once the rest has been merged. New
// records are prepended to the stored ones, the result is sorted by
// descending startTime, and the document is rewritten. When nothing is new
// the file is not touched, so repeated runs leave it byte-for-byte equal.
//
// The stop rule assumes the vendor lists activities strictly by recency.
// An activity that appears late in the list (a watch uploading an old
// session days later, for example) lands behind records that are already
// known and will not be picked up by an incremental run. Deleting
// activities.json forces a full re-fetch.
//
// # Daily metrics
//
// A day that is already stored is never replaced, even if the vendor later
// revises its values. Remote days that are not stored are inserted and the
// list is kept sorted by ascending happenDay. Every other top-level field of
// the bundle (weekList, summaryInfo, ...) is a vendor rollup and replaces
// the stored value on every run.
//
// # Failure handling
//
// Any error in a resource step, including a panic, is captured in that
// step's Result; the remaining steps still run. Activity pages fetched
// before a failure are still merged. Report.Err joins all failures.
//
// # Concurrency
//
// An Engine serializes its own runs. Two processes syncing the same data
// directory are not supported.
package sync
