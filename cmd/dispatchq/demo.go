package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/dispatchq"
	"github.com/srg/dispatchq/pkg/config"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a confined-counter workload on one serial queue",
	Long: `Runs a demonstration workload against a single serial queue:

- N producer goroutines race to append into one queue-confined slice
- A cooperative ticker task suspends between delayed wakes
- A deliberately failing task shows per-task failure isolation

Prints a summary of what happened on the queue.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().String("config", "", "Path to YAML config file")
	demoCmd.Flags().BoolP("verbose", "V", false, "Enable verbose logging")
	demoCmd.Flags().Int("producers", 0, "Override number of producer goroutines")
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if n, _ := cmd.Flags().GetInt("producers"); n > 0 {
		cfg.Producers = n
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	queue := dispatchq.NewSerialQueue(cfg.QueueLabel, &dispatchq.QueueOptions{Logger: logger})
	defer queue.Shutdown()
	exec := dispatchq.NewExecutor(queue, logger)

	// All producer appends funnel through this handle; the queue's
	// serialization is the only lock.
	events, err := dispatchq.NewHandle(queue, func() []int { return nil }, nil)
	if err != nil {
		return err
	}

	tickInterval, err := cfg.Tick()
	if err != nil {
		return err
	}
	runFor, err := cfg.Run()
	if err != nil {
		return err
	}

	start := time.Now()

	// Cooperative ticker: suspends until a delayed closure fires its waker.
	ticker, err := dispatchq.Spawn(exec, tickerTask(queue, tickInterval, runFor))
	if err != nil {
		return err
	}

	// A sibling that dies must not take the queue down with it.
	failing, err := dispatchq.Spawn(exec, func(tc *dispatchq.TaskContext) dispatchq.Step[struct{}] {
		panic("demo task failure")
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	futures := make(chan *dispatchq.Future[struct{}], cfg.Producers*cfg.ItemsPerProd)
	for p := 0; p < cfg.Producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < cfg.ItemsPerProd; i++ {
				fut, err := events.With(func(v *[]int) {
					*v = append(*v, p)
				})
				if err != nil {
					logger.WithError(err).Error("append rejected")
					return
				}
				futures <- fut
			}
		}(p)
	}
	wg.Wait()
	close(futures)

	for fut := range futures {
		if _, err := fut.AwaitTimeout(10 * time.Second); err != nil {
			return err
		}
	}

	ticks, err := ticker.Await(context.Background())
	if err != nil {
		return err
	}
	_, failErr := failing.AwaitTimeout(10 * time.Second)

	total, err := dispatchq.LockResult(events, func(v *[]int) int {
		return len(*v)
	})
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("%s %s\n", bold("queue:"), cfg.QueueLabel)
	fmt.Printf("%s %s appended in %v (%d producers x %d items)\n",
		bold("events:"), green(total), time.Since(start).Round(time.Millisecond),
		cfg.Producers, cfg.ItemsPerProd)
	fmt.Printf("%s %d ticks at %v\n", bold("ticker:"), ticks, tickInterval)
	fmt.Printf("%s %s (isolated from siblings)\n", bold("failing task:"), red(failErr))
	return nil
}

// tickerTask counts delayed wakes until deadline passes, then completes with
// the tick count.
func tickerTask(q *dispatchq.SerialQueue, interval, runFor time.Duration) dispatchq.TaskFunc[int] {
	ticks := 0
	deadline := time.Now().Add(runFor)
	return func(tc *dispatchq.TaskContext) dispatchq.Step[int] {
		if tc.Cancelled() || time.Now().After(deadline) {
			return dispatchq.Ready(ticks)
		}
		ticks++
		waker := tc.Waker()
		if err := q.EnqueueAfter(interval, waker.Wake); err != nil {
			return dispatchq.Fail[int](err)
		}
		return dispatchq.Pending[int]()
	}
}
