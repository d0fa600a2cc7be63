package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type quietLogger struct{}

func (quietLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (quietLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (quietLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (quietLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

func TestEveryNext(t *testing.T) {
	at := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	if got := Every(15 * time.Minute).Next(at); !got.Equal(at.Add(15 * time.Minute)) {
		t.Errorf("Next(%v) = %v", at, got)
	}
}

func TestDailyAtNext(t *testing.T) {
	tests := []struct {
		name  string
		sched DailyAt
		after time.Time
		want  time.Time
	}{
		{
			"before todays slot",
			DailyAt{Hour: 2, Minute: 30},
			time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 4, 2, 30, 0, 0, time.UTC),
		},
		{
			"after todays slot",
			DailyAt{Hour: 2, Minute: 30},
			time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 5, 2, 30, 0, 0, time.UTC),
		},
		{
			"exactly at the slot",
			DailyAt{Hour: 2, Minute: 30},
			time.Date(2024, 3, 4, 2, 30, 0, 0, time.UTC),
			time.Date(2024, 3, 5, 2, 30, 0, 0, time.UTC),
		},
		{
			"month rollover",
			DailyAt{Hour: 0},
			time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC),
			time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sched.Next(tt.after); !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestSchedulerRunsAndRecordsStatus(t *testing.T) {
	s := New(quietLogger{})
	var runs atomic.Int32
	s.Add(Job{
		Name:     "ticker",
		Schedule: Every(10 * time.Millisecond),
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if runs.Load() < 2 {
		t.Fatalf("job ran %d times", runs.Load())
	}
	st := s.Status("ticker")
	if st == nil {
		t.Fatal("no status recorded")
	}
	if st.Runs < 2 || st.Failures != 0 || st.LastErr != nil {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestSchedulerKeepsFailingJobScheduled(t *testing.T) {
	s := New(quietLogger{})
	var runs atomic.Int32
	boom := errors.New("boom")
	s.Add(Job{
		Name:     "flaky",
		Schedule: Every(10 * time.Millisecond),
		Run: func(context.Context) error {
			runs.Add(1)
			return boom
		},
	})

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if runs.Load() < 2 {
		t.Fatalf("failing job stopped rescheduling after %d runs", runs.Load())
	}
	st := s.Status("flaky")
	if st == nil {
		t.Fatal("no status recorded")
	}
	if st.Failures != int(st.Runs) || !errors.Is(st.LastErr, boom) {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestSchedulerStatusUnknownJob(t *testing.T) {
	s := New(quietLogger{})
	if st := s.Status("missing"); st != nil {
		t.Errorf("expected nil status, got %+v", st)
	}
}
