// Package workflow schedules audit batches on Temporal.
//
// AuditWorkflow is a thin deterministic shell around a single activity that
// runs the whole batch. Per-item resilience lives in the pipeline itself
// (retries, fallback, the ledger), so the workflow only decides whether a
// failed batch attempt is worth repeating. Run it with a cron schedule to get
// the daily audit; a restarted attempt resumes from the ledger.
package workflow
