// Package monitor defines the domain types and ports shared by the page
// monitoring pipeline: targets, check and notification records, the storage
// and notifier capabilities, and the typed errors the pipeline reports.
package monitor
