package dispatchq_test

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/dispatchq"
)

type HandleTestSuite struct {
	suite.Suite

	queue *dispatchq.SerialQueue
}

func (suite *HandleTestSuite) SetupTest() {
	suite.queue = dispatchq.NewSerialQueue("test.handle", nil)
}

func (suite *HandleTestSuite) TearDownTest() {
	suite.queue.Shutdown()
}

func (suite *HandleTestSuite) TestConstructorRunsOnQueue() {
	// GOAL: Verify the confined value is constructed on its queue
	//
	// TEST SCENARIO: NewHandle with a probing constructor → constructor observed IsCurrent() == true

	var ctorOnQueue bool
	h, err := dispatchq.NewHandle(suite.queue, func() int {
		ctorOnQueue = suite.queue.IsCurrent()
		return 1
	}, nil)

	suite.Require().NoError(err)
	suite.Require().NotNil(h)
	suite.Assert().True(ctorOnQueue, "constructor MUST run on the confinement queue")
	suite.Assert().Same(suite.queue, h.Queue())
}

func (suite *HandleTestSuite) TestConcurrentWithNeverCorruptsState() {
	// GOAL: Verify the queue's serialization substitutes for a lock
	//
	// TEST SCENARIO: 1000 concurrent With(push) calls against one confined slice →
	// final length is exactly 1000, nothing lost or duplicated

	h, err := dispatchq.NewHandle(suite.queue, func() []int { return nil }, nil)
	suite.Require().NoError(err)

	const calls = 1000
	var wg sync.WaitGroup
	futs := make([]*dispatchq.Future[struct{}], calls)
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			futs[i], errs[i] = h.With(func(v *[]int) {
				*v = append(*v, i)
			})
		}(i)
	}
	wg.Wait()

	for i := range futs {
		suite.Require().NoError(errs[i])
		_, err := futs[i].AwaitTimeout(10 * time.Second)
		suite.Require().NoError(err)
	}

	length, err := dispatchq.LockResult(h, func(v *[]int) int { return len(*v) })
	suite.Require().NoError(err)
	suite.Assert().Equal(calls, length, "no element may be lost or duplicated")
}

func (suite *HandleTestSuite) TestHundredCallerThreads() {
	// GOAL: Verify 100 independent caller goroutines, one push each
	//
	// TEST SCENARIO: 100 goroutines each push their index → after all futures resolve,
	// the vector holds each value exactly once

	h, err := dispatchq.NewHandle(suite.queue, func() []int { return nil }, nil)
	suite.Require().NoError(err)

	const callers = 100
	futs := make([]*dispatchq.Future[struct{}], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fut, err := h.With(func(v *[]int) { *v = append(*v, i) })
			suite.Require().NoError(err)
			futs[i] = fut
		}(i)
	}
	wg.Wait()
	for _, fut := range futs {
		_, err := fut.AwaitTimeout(10 * time.Second)
		suite.Require().NoError(err)
	}

	var snapshot []int
	suite.Require().NoError(h.Lock(func(v *[]int) {
		snapshot = append([]int(nil), *v...)
	}))

	suite.Require().Len(snapshot, callers)
	sort.Ints(snapshot)
	for i, v := range snapshot {
		suite.Assert().Equal(i, v, "each pushed value MUST appear exactly once")
	}
}

func (suite *HandleTestSuite) TestWithResult() {
	// GOAL: Verify WithResult resolves with the closure's value once it ran on the queue

	h, err := dispatchq.NewHandle(suite.queue, func() map[string]int {
		return map[string]int{"reads": 0}
	}, nil)
	suite.Require().NoError(err)

	fut, err := dispatchq.WithResult(h, func(v *map[string]int) int {
		(*v)["reads"]++
		return (*v)["reads"]
	})
	suite.Require().NoError(err)

	n, err := fut.AwaitTimeout(5 * time.Second)
	suite.Require().NoError(err)
	suite.Assert().Equal(1, n)
}

func (suite *HandleTestSuite) TestWithPanicFailsFutureOnly() {
	// GOAL: Verify a panicking access fails its own future without poisoning the queue
	//
	// TEST SCENARIO: With(panic) → future reports FailedError → later accesses still work

	h, err := dispatchq.NewHandle(suite.queue, func() int { return 0 }, nil)
	suite.Require().NoError(err)

	fut, err := h.With(func(*int) { panic("access exploded") })
	suite.Require().NoError(err)
	_, err = fut.AwaitTimeout(5 * time.Second)
	suite.Require().Error(err)
	var fe *dispatchq.FailedError
	suite.Assert().ErrorAs(err, &fe)

	// The queue and the value survive
	v, err := dispatchq.LockResult(h, func(v *int) int { return *v })
	suite.Require().NoError(err)
	suite.Assert().Equal(0, v)
}

func (suite *HandleTestSuite) TestWithBoth() {
	// GOAL: Verify zipped access to two values confined to the same queue

	a, err := dispatchq.NewHandle(suite.queue, func() int { return 2 }, nil)
	suite.Require().NoError(err)
	b, err := dispatchq.NewHandle(suite.queue, func() int { return 21 }, nil)
	suite.Require().NoError(err)

	fut, err := dispatchq.WithBoth(a, b, func(x, y *int) int { return *x * *y })
	suite.Require().NoError(err)
	v, err := fut.AwaitTimeout(5 * time.Second)
	suite.Require().NoError(err)
	suite.Assert().Equal(42, v)
}

func (suite *HandleTestSuite) TestWithBothQueueMismatch() {
	// GOAL: Verify zipping across queues is rejected

	other := dispatchq.NewSerialQueue("test.handle.other", nil)
	defer other.Shutdown()

	a, err := dispatchq.NewHandle(suite.queue, func() int { return 1 }, nil)
	suite.Require().NoError(err)
	b, err := dispatchq.NewHandle(other, func() int { return 2 }, nil)
	suite.Require().NoError(err)

	_, err = dispatchq.WithBoth(a, b, func(x, y *int) int { return 0 })
	suite.Assert().ErrorIs(err, dispatchq.ErrQueueMismatch)
}

func (suite *HandleTestSuite) TestCloseReleasesOnQueue() {
	// GOAL: Verify Close schedules the release on the confinement queue
	//
	// TEST SCENARIO: Close a live handle → release observed IsCurrent() == true

	released := make(chan bool, 1)
	h, err := dispatchq.NewHandle(suite.queue, func() int { return 1 }, &dispatchq.HandleOptions[int]{
		Release: func(*int) {
			released <- suite.queue.IsCurrent()
		},
	})
	suite.Require().NoError(err)

	suite.Require().NoError(h.Close())
	select {
	case onQueue := <-released:
		suite.Assert().True(onQueue, "release MUST run on the confinement queue")
	case <-time.After(5 * time.Second):
		suite.FailNow("release never ran")
	}

	// Idempotent
	suite.Assert().NoError(h.Close())
}

func (suite *HandleTestSuite) TestCloseFallbackAfterShutdown() {
	// GOAL: Verify the documented best-effort fallback: release runs synchronously
	// on the closing goroutine once the queue is gone
	//
	// TEST SCENARIO: Shutdown the queue → Close → release ran inline, ErrQueueShutdown reported

	released := false
	releasedOnQueue := true
	h, err := dispatchq.NewHandle(suite.queue, func() int { return 1 }, &dispatchq.HandleOptions[int]{
		Release: func(*int) {
			released = true
			releasedOnQueue = suite.queue.IsCurrent()
		},
	})
	suite.Require().NoError(err)

	suite.queue.Shutdown()
	suite.Require().NoError(suite.queue.WaitIdle())

	err = h.Close()
	suite.Assert().ErrorIs(err, dispatchq.ErrQueueShutdown)
	suite.Assert().True(released, "forward progress beats strict confinement here")
	suite.Assert().False(releasedOnQueue)
}

func (suite *HandleTestSuite) TestNewHandleOnShutdownQueue() {
	// GOAL: Verify construction on a dead queue fails synchronously

	suite.queue.Shutdown()
	_, err := dispatchq.NewHandle(suite.queue, func() int { return 1 }, nil)
	suite.Assert().ErrorIs(err, dispatchq.ErrQueueShutdown)
}

func TestHandleTestSuite(t *testing.T) {
	suite.Run(t, new(HandleTestSuite))
}
