// stress hammers one MWMR ring with many blocking writers and a single
// draining reader, the contention shape that shakes out claim/commit
// bugs. The degenerate default (50 writers, 1 slot) must keep making
// progress for the whole run.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/yanun0323/logs"

	"github.com/vedarsh/kachow/pkg/exception"
	"github.com/vedarsh/kachow/pkg/shmbus"
)

func main() {
	topic := flag.String("topic", "stress", "Topic to hammer")
	dir := flag.String("dir", "", "Segment namespace directory (default /dev/shm)")
	writers := flag.Int("writers", 50, "Concurrent writer goroutines")
	slots := flag.Uint("slots", 1, "Ring slot count")
	duration := flag.Duration("duration", 2*time.Second, "Run length")
	flag.Parse()

	ctx, err := shmbus.Init(shmbus.Config{AppName: "stress", LogLevel: shmbus.LogWarn, Dir: *dir})
	if err != nil {
		logs.Errorf("init context, err: %+v", err)
		os.Exit(1)
	}
	defer ctx.Shutdown()

	pub, err := ctx.NewPublisher(shmbus.Options{
		Topic:        *topic,
		RingType:     shmbus.MWMR,
		SlotCount:    uint32(*slots),
		SlotSize:     64,
		BlockOnFull:  true,
		BlockTimeout: *duration,
	})
	if err != nil {
		logs.Errorf("create publisher, err: %+v", err)
		os.Exit(1)
	}
	sub, err := ctx.NewSubscriber(*topic)
	if err != nil {
		logs.Errorf("create subscriber, err: %+v", err)
		os.Exit(1)
	}

	var sent, timedOut uint64
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < *writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			payload := fmt.Appendf(nil, "writer-%02d", id)
			for {
				select {
				case <-stop:
					return
				default:
				}
				switch err := pub.Send(payload); {
				case err == nil:
					atomic.AddUint64(&sent, 1)
				case errors.Is(err, exception.ErrSendTimeout):
					atomic.AddUint64(&timedOut, 1)
				default:
					logs.Errorf("writer %d, err: %+v", id, err)
					return
				}
			}
		}(i)
	}

	var received, skipped uint64
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 64)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, err := sub.RecvInto(buf)
			var overrun *exception.OverrunError
			switch {
			case err == nil:
				received++
			case errors.As(err, &overrun):
				skipped += overrun.Skipped
			case errors.Is(err, exception.ErrNoData):
			}
		}
	}()

	time.Sleep(*duration)
	close(stop)
	wg.Wait()

	fmt.Printf("writers=%d slots=%d duration=%s\n", *writers, *slots, *duration)
	fmt.Printf("sent=%d timed_out=%d received=%d skipped=%d\n",
		atomic.LoadUint64(&sent), atomic.LoadUint64(&timedOut), received, skipped)
	if sent == 0 {
		fmt.Println("FAIL: no writer made progress")
		os.Exit(1)
	}
}
