package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Infow(string, ...interface{}) {}

func (l *recordingLogger) Errorw(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestScheduler(t *testing.T) {
	Convey("Given a Scheduler", t, func() {
		logger := &recordingLogger{}
		scheduler := New(logger)

		Convey("New should build a cron instance", func() {
			So(scheduler.cron, ShouldNotBeNil)
			So(scheduler.Next().IsZero(), ShouldBeTrue)
		})

		Convey("When adding a job with a valid cron spec", func() {
			var runs atomic.Int32
			err := scheduler.AddJob("backup", "* * * * * *", func(ctx context.Context) error {
				runs.Add(1)
				return nil
			})
			So(err, ShouldBeNil)

			Convey("It should run until stopped", func() {
				So(scheduler.Next().IsZero(), ShouldBeFalse)

				scheduler.Start(context.Background())
				time.Sleep(2 * time.Second)
				scheduler.Stop()

				So(runs.Load(), ShouldBeGreaterThanOrEqualTo, 1)

				after := runs.Load()
				time.Sleep(1500 * time.Millisecond)
				So(runs.Load(), ShouldEqual, after)
			})
		})

		Convey("When a job returns an error", func() {
			err := scheduler.AddJob("backup", "* * * * * *", func(ctx context.Context) error {
				return errors.New("upload stage: transmission failed")
			})
			So(err, ShouldBeNil)

			Convey("It should log the failure", func() {
				scheduler.Start(context.Background())
				time.Sleep(2 * time.Second)
				scheduler.Stop()

				So(logger.count(), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When a job panics", func() {
			err := scheduler.AddJob("backup", "* * * * * *", func(ctx context.Context) error {
				panic("boom")
			})
			So(err, ShouldBeNil)

			Convey("The scheduler should recover and log it", func() {
				scheduler.Start(context.Background())
				time.Sleep(2 * time.Second)
				So(func() { scheduler.Stop() }, ShouldNotPanic)
				So(logger.count(), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("The job should receive the context passed to Start", func() {
			type key struct{}
			got := make(chan interface{}, 1)
			So(scheduler.AddJob("backup", "* * * * * *", func(ctx context.Context) error {
				select {
				case got <- ctx.Value(key{}):
				default:
				}
				return nil
			}), ShouldBeNil)

			scheduler.Start(context.WithValue(context.Background(), key{}, "daemon"))
			var v interface{}
			select {
			case v = <-got:
			case <-time.After(3 * time.Second):
			}
			scheduler.Stop()
			So(v, ShouldEqual, "daemon")
		})

		Convey("When adding a job with an invalid cron spec", func() {
			err := scheduler.AddJob("backup", "invalid spec", func(ctx context.Context) error { return nil })

			Convey("It should return an error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "expected exactly 6 fields")
			})
		})
	})
}
