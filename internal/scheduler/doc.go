// Package scheduler arms weekly cron triggers for stored jobs and delivers
// their payload when a trigger fires.
//
// Each job owns at most one cron entry, keyed by (channel id, job id). The
// payload is copied at registration; later edits take effect only through
// a new Schedule call.
package scheduler
