package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/config"
	redisclient "github.com/9thLevelSoftware/vlvt-ephemeral/internal/redis"
)

// Job is one retention job, triggered at a fixed UTC time of day.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduledJob struct {
	job     Job
	hourUTC int
	minUTC  int
}

// jobLockTTL bounds how long a run can hold its overlap lock; a crash
// mid-run frees the lock by expiry before the next day's tick.
const jobLockTTL = time.Hour

const jobRunTimeout = 10 * time.Minute

// Scheduler triggers each registered job once per day at its UTC
// clock time. A redis lock per job name guards against overlapping
// executions; a tick that finds the lock held is skipped, which is
// safe because the jobs' delete predicates are time-window based and
// idempotent.
type Scheduler struct {
	redis *redisclient.Client
	jobs  []scheduledJob
	done  chan struct{}
	wg    sync.WaitGroup
	// now and after are swappable for tests.
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler verifies the job backend within a bounded timeout. The
// caller treats a failure as "scheduler absent": it logs and continues,
// because the primary request path never depends on the scheduler
// being live.
func NewScheduler(redisClient *redisclient.Client) (*Scheduler, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.SchedulerConnectTimeout)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Scheduler{
		redis: redisClient,
		done:  make(chan struct{}),
		now:   time.Now,
		after: time.After,
	}, nil
}

// Register adds a job at the given UTC time of day. Must be called
// before Start.
func (s *Scheduler) Register(job Job, hourUTC, minUTC int) {
	s.jobs = append(s.jobs, scheduledJob{job: job, hourUTC: hourUTC, minUTC: minUTC})
}

func (s *Scheduler) Start() {
	for _, sj := range s.jobs {
		s.wg.Add(1)
		go s.run(sj)
		log.Info().
			Str("job", sj.job.Name()).
			Int("hourUTC", sj.hourUTC).
			Int("minUTC", sj.minUTC).
			Msg("retention job scheduled")
	}
}

func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
	log.Info().Msg("retention scheduler stopped")
}

func (s *Scheduler) run(sj scheduledJob) {
	defer s.wg.Done()

	for {
		wait := untilNext(s.now().UTC(), sj.hourUTC, sj.minUTC)
		select {
		case <-s.done:
			return
		case <-s.after(wait):
			s.execute(sj.job)
		}
	}
}

func (s *Scheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobRunTimeout)
	defer cancel()

	lockKey := redisclient.JobLockKey(job.Name())
	acquired, err := s.redis.SetNX(ctx, lockKey, s.now().UTC().Format(time.RFC3339), jobLockTTL).Result()
	if err != nil {
		log.Error().Err(err).Str("job", job.Name()).Msg("failed to acquire job lock")
		return
	}
	if !acquired {
		log.Warn().Str("job", job.Name()).Msg("previous run still holds the lock, skipping tick")
		return
	}
	defer func() {
		if err := s.redis.Del(context.Background(), lockKey).Err(); err != nil {
			log.Warn().Err(err).Str("job", job.Name()).Msg("failed to release job lock")
		}
	}()

	started := s.now()
	log.Info().Str("job", job.Name()).Msg("retention job starting")

	if err := job.Run(ctx); err != nil {
		// Logged with enough context to replay manually; the next
		// scheduled tick corrects a failed run.
		log.Error().Err(err).Str("job", job.Name()).Msg("retention job failed")
		return
	}

	log.Info().
		Str("job", job.Name()).
		Dur("elapsed", s.now().Sub(started)).
		Msg("retention job finished")
}

// untilNext returns the duration from now to the next occurrence of the
// given UTC clock time.
func untilNext(now time.Time, hourUTC, minUTC int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, minUTC, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
