// Package sched runs a job at fixed wall-clock times of day, with an
// on-demand trigger path. Overlapping runs are never allowed; a second
// request while one is in flight is dropped with a log notice.
package sched
