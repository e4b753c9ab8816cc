// pubdemo publishes synthetic market ticks onto one topic: a sine-wave
// price stream wrapped in the timestamp envelope. Pair it with subdemo
// on another terminal (or another machine-local process) to watch the
// transport move data.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	_ "go.uber.org/automaxprocs"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/vedarsh/kachow/internal/obs"
	"github.com/vedarsh/kachow/pkg/conn"
	"github.com/vedarsh/kachow/pkg/shmbus"
)

func main() {
	topic := flag.String("topic", "ticks", "Topic to publish on")
	dir := flag.String("dir", "", "Segment namespace directory (default /dev/shm)")
	slotCount := flag.Uint("slot-count", 4096, "Ring slot count")
	slotSize := flag.Uint("slot-size", 256, "Ring slot payload capacity")
	rate := flag.Uint64("rate", 0, "Publish rate limit in Hz (0=unlimited)")
	count := flag.Int("count", 0, "Messages to publish (0=until stopped)")
	interval := flag.Duration("interval", 10*time.Millisecond, "Delay between publishes")
	mwmr := flag.Bool("mwmr", false, "Create an MWMR ring instead of SWMR")
	block := flag.Bool("block", false, "Block when the ring is contended")
	pyroAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	telemetryDSN := flag.String("telemetry", "", "PostgreSQL DSN for the health sink (empty=disabled)")
	telemetryEvery := flag.Duration("telemetry-interval", 10*time.Second, "Health sink sample interval")
	flag.Parse()

	if *pyroAddr != "" {
		_, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "kachow.pubdemo",
			ServerAddress:   *pyroAddr,
		})
		if err != nil {
			logs.Errorf("pyroscope start, err: %+v", err)
		}
	}

	ctx, err := shmbus.Init(shmbus.Config{AppName: "pubdemo", Dir: *dir})
	if err != nil {
		logs.Errorf("init context, err: %+v", err)
		os.Exit(1)
	}
	defer ctx.Shutdown()

	if *telemetryDSN != "" {
		client, err := conn.New(conn.Option{ConnString: *telemetryDSN})
		if err != nil {
			logs.Errorf("telemetry store, err: %+v", err)
			os.Exit(1)
		}
		defer client.Close()
		sink, err := obs.NewSink(client, ctx.Healths, *telemetryEvery)
		if err != nil {
			logs.Errorf("telemetry sink, err: %+v", err)
			os.Exit(1)
		}
		sinkCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go sink.Run(sinkCtx)
	}

	rt := shmbus.SWMR
	if *mwmr {
		rt = shmbus.MWMR
	}
	pub, err := ctx.NewPublisher(shmbus.Options{
		Topic:       *topic,
		RingType:    rt,
		SlotCount:   uint32(*slotCount),
		SlotSize:    uint32(*slotSize),
		RateLimitHz: *rate,
		BlockOnFull: *block,
	})
	if err != nil {
		logs.Errorf("create publisher, err: %+v", err)
		os.Exit(1)
	}

	logs.Infof("publishing ticks: topic=%s type=%s interval=%s", *topic, rt, *interval)

	statTicker := time.NewTicker(5 * time.Second)
	defer statTicker.Stop()
	buf := make([]byte, 0, *slotSize)

	for i := 0; *count == 0 || i < *count; i++ {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal, stopping publisher")
			return
		case <-statTicker.C:
			h := pub.Health()
			logs.Infof("pub health: ops=%d errs=%d rate=%dHz healthy=%t",
				h.Operations, h.Errors, h.RateHz, h.Healthy)
		default:
		}

		buf = shmbus.WrapEnvelope(buf[:0], time.Now(), tickPayload(i))
		if err := pub.Send(buf); err != nil {
			logs.Errorf("publish tick %d, err: %+v", i, err)
		}
		if *interval > 0 {
			time.Sleep(*interval)
		}
	}
}

// tickPayload renders one synthetic tick. Price walks a sine wave
// around 50000 so the stream is recognizable on the subscriber side.
func tickPayload(i int) []byte {
	price := 50000 + 250*math.Sin(2*math.Pi*float64(i)/240)
	qty := 0.01 + 0.005*math.Abs(math.Sin(float64(i)/17))
	return fmt.Appendf(nil, `{"symbol":"BTC-USD","price":"%.2f","qty":"%.5f","seq":%d}`,
		price, qty, i)
}
