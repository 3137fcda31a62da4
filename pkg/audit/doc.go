// Package audit records who changed what in the CRM.
//
// Services build an Entry (actor, action, entity and a field-level diff) and
// hand it to a Recorder. The Recorder fills in the timestamp and the request
// metadata captured by Middleware, then writes to a Logger sink. Recording
// never fails the caller: sink errors are logged and counted.
//
// # Sinks
//
// DBLogger: Postgres table audit_logs. UPDATE is rejected by a trigger and
// DELETE only passes inside a transaction that set edugate.audit_retention.
// MemoryLogger: process-local, for development and tests.
// MultiLogger: fans out to several sinks.
//
// # Retention
//
// Retention exports entries older than the retention period as NDJSON to an
// Archiver (S3 or a local directory) and then deletes them:
//
//	r := audit.NewRetention(db, audit.NewS3Archiver(client, "audit-archive"), clk, logger, metrics)
//	result, err := r.Run(ctx, 365)
package audit
