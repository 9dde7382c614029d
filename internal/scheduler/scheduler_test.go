package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("间隔为 0 时应报错")
	}
	if _, err := New(Options{Cron: "not a cron"}, zerolog.Nop()); err == nil {
		t.Fatal("非法 cron 表达式应报错")
	}
	if _, err := New(Options{Cron: "@hourly"}, zerolog.Nop()); err != nil {
		t.Fatalf("cron 优先于间隔: %v", err)
	}
}

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 10, 2, 10, 17, 0, 0, time.UTC)

	next := s.nextTick(now)
	if want := time.Date(2025, 10, 2, 11, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("期望 %s, 实际 %s", want, next)
	}
	if got := s.nextTick(time.Date(2025, 10, 2, 11, 0, 0, 0, time.UTC)); !got.Equal(time.Date(2025, 10, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("整点时应推进到下一桶, 实际 %s", got)
	}
	if got := s.bucketStart(next.Add(3 * time.Second)); !got.Equal(next) {
		t.Fatalf("桶起点不符: %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s, err := New(Options{Interval: 15 * time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 10, 2, 10, 17, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("未对齐时应直接加间隔, 实际 %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(now) {
		t.Fatalf("未对齐时桶起点应为原时间, 实际 %s", got)
	}
}

func TestNextTickCron(t *testing.T) {
	s, err := New(Options{Cron: "30 9 * * *"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 10, 2, 10, 0, 0, 0, time.UTC)

	next := s.nextTick(now)
	want := time.Date(2025, 10, 3, 9, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("期望 %s, 实际 %s", want, next)
	}
	if got := s.after(next); !got.Equal(want.AddDate(0, 0, 1)) {
		t.Fatalf("下一次执行应为次日, 实际 %s", got)
	}
	if got := s.bucketStart(next); !got.Equal(next) {
		t.Fatalf("cron 桶起点应为触发时间, 实际 %s", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) >= 2 {
				cancel()
			}
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("期望 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未在取消后退出")
	}
	if calls.Load() < 2 {
		t.Fatalf("期望至少执行 2 次, 实际 %d", calls.Load())
	}
}

func TestRunStartupDelayCancelled(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled, 实际 %v", err)
	}
}
