package community

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
)

// Scheduler runs the detection job once a day at a configured local time,
// for every configured namespace. In-flight runs are never cancelled; the
// loop only decides when the next ones start.
type Scheduler struct {
	job        *Job
	namespaces []string
	hour       int
	minute     int
	logger     *logrus.Logger

	mu      sync.Mutex
	nextRun time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler parses the "HH:MM" schedule and prepares the loop.
func NewScheduler(job *Job, namespaces []string, schedule string, logger *logrus.Logger) (*Scheduler, error) {
	hour, minute, err := parseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		job:        job,
		namespaces: namespaces,
		hour:       hour,
		minute:     minute,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}, nil
}

func parseSchedule(schedule string) (int, int, error) {
	parts := strings.SplitN(schedule, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid schedule %q, want HH:MM", schedule)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid schedule hour in %q", schedule)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid schedule minute in %q", schedule)
	}
	return hour, minute, nil
}

// nextOccurrence returns the next time the schedule fires after now.
func (s *Scheduler) nextOccurrence(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// NextRun reports when the next scheduled run starts.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Start launches the scheduler loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.WithFields(logrus.Fields{
		"schedule":   fmt.Sprintf("%02d:%02d", s.hour, s.minute),
		"namespaces": s.namespaces,
	}).Info("Community detection scheduler started")
}

// Stop signals the loop to exit and waits for it. Runs already started keep
// going to completion.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		next := s.nextOccurrence(time.Now())
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.runAll()
		}
	}
}

// runAll starts one run per namespace. Namespaces run concurrently; a
// namespace still busy from a previous trigger is skipped until tomorrow.
func (s *Scheduler) runAll() {
	var wg sync.WaitGroup
	for _, namespace := range s.namespaces {
		wg.Add(1)
		go func(namespace string) {
			defer wg.Done()
			if _, err := s.job.Run(context.Background(), namespace); err != nil {
				if errors.Is(err, model.ErrAlreadyRunning) {
					s.logger.WithField("namespace", namespace).Info("Scheduled run skipped, already running")
					return
				}
				s.logger.WithField("namespace", namespace).WithError(err).Error("Scheduled community detection run failed")
			}
		}(namespace)
	}
	wg.Wait()
}
