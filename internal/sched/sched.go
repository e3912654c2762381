package sched

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TimeOfDay is a wall-clock firing time in the local timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimes parses a comma-separated list of HH:MM entries.
func ParseTimes(s string) ([]TimeOfDay, error) {
	var out []TimeOfDay
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hh, mm, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid schedule entry %q", part)
		}
		hour, err := strconv.Atoi(hh)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid hour in %q", part)
		}
		minute, err := strconv.Atoi(mm)
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid minute in %q", part)
		}
		out = append(out, TimeOfDay{Hour: hour, Minute: minute})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty schedule")
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out, nil
}

// Job is the work a Scheduler drives.
type Job func(ctx context.Context)

// Scheduler fires a Job at fixed wall-clock times and on demand. At most
// one run is ever in flight; triggers that land while a run is active are
// dropped, and firings missed while the process slept are not backfilled.
type Scheduler struct {
	times   []TimeOfDay
	job     Job
	log     *log.Logger
	trigger chan struct{}

	runMu   sync.Mutex // held for the duration of a run
	stateMu sync.Mutex
	running bool
}

// New creates a Scheduler for the given firing times.
func New(times []TimeOfDay, job Job, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		times:   times,
		job:     job,
		log:     logger,
		trigger: make(chan struct{}, 1),
	}
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.running
}

// Trigger requests an immediate run. It returns false when a run is already
// in flight or a trigger is already pending, in which case the request is
// dropped.
func (s *Scheduler) Trigger() bool {
	if s.Running() {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start blocks, firing the job at each scheduled time and on each trigger,
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := s.nextAfter(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.trigger:
			timer.Stop()
			s.runOnce(ctx, "trigger")
		case <-timer.C:
			// If the process slept past this firing, skip it rather than
			// replaying a stale wakeup.
			if d := time.Since(next); d > time.Minute {
				s.log.Printf("sched: skipping firing %s, woke %s late", next.Format("15:04"), d.Round(time.Second))
				continue
			}
			s.runOnce(ctx, "schedule")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, reason string) {
	if !s.runMu.TryLock() {
		s.log.Printf("sched: %s run dropped, a run is already in flight", reason)
		return
	}
	defer s.runMu.Unlock()

	s.setRunning(true)
	defer s.setRunning(false)

	s.log.Printf("sched: %s run starting", reason)
	s.job(ctx)
}

func (s *Scheduler) setRunning(v bool) {
	s.stateMu.Lock()
	s.running = v
	s.stateMu.Unlock()
}

// nextAfter returns the earliest scheduled firing strictly after now.
func (s *Scheduler) nextAfter(now time.Time) time.Time {
	for _, t := range s.times {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	first := s.times[0]
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), first.Hour, first.Minute, 0, 0, now.Location())
}
