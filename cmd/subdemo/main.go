// subdemo drains a topic published by pubdemo, decoding tick payloads
// and reporting lag, skips and throughput. It also polls the control
// topic so a cooperating process can stop it remotely.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"os"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/vedarsh/kachow/pkg/exception"
	"github.com/vedarsh/kachow/pkg/shmbus"
)

// tick mirrors pubdemo's payload. Prices decode into decimals so the
// demo math keeps exchange precision.
type tick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Qty    decimal.Decimal `json:"qty"`
	Seq    uint64          `json:"seq"`
}

func main() {
	topic := flag.String("topic", "ticks", "Topic to consume")
	dir := flag.String("dir", "", "Segment namespace directory (default /dev/shm)")
	attachWait := flag.Duration("attach-wait", 5*time.Second, "How long to wait for the topic to appear")
	printEvery := flag.Int("print-every", 500, "Log every Nth tick")
	flag.Parse()

	ctx, err := shmbus.Init(shmbus.Config{AppName: "subdemo", Dir: *dir})
	if err != nil {
		logs.Errorf("init context, err: %+v", err)
		os.Exit(1)
	}
	defer ctx.Shutdown()

	sub, err := attach(ctx, *topic, *attachWait)
	if err != nil {
		logs.Errorf("attach topic %s, err: %+v", *topic, err)
		os.Exit(1)
	}
	ctl, err := ctx.NewSubscriber(shmbus.ControlTopic)
	if err != nil {
		// No control ring in this deployment; sys signals still work.
		ctl = nil
	}

	logs.Infof("consuming: topic=%s", *topic)
	statTicker := time.NewTicker(5 * time.Second)
	defer statTicker.Stop()

	var total uint64
	for {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal, stopping subscriber")
			return
		case <-statTicker.C:
			h := sub.Health()
			logs.Infof("sub health: ops=%d errs=%d rate=%dHz lag=%d skipped=%d healthy=%t",
				h.Operations, h.Errors, h.RateHz, h.Lag, sub.Skipped(), h.Healthy)
		default:
		}

		if ctl != nil && pollControl(ctl) {
			logs.Info("stop command received")
			return
		}

		msg, err := sub.RecvMsg()
		if err != nil {
			var overrun *exception.OverrunError
			switch {
			case errors.Is(err, exception.ErrNoData):
				time.Sleep(time.Millisecond)
			case errors.As(err, &overrun):
				logs.Errorf("fell behind writer, skipped %d messages", overrun.Skipped)
			default:
				logs.Errorf("receive, err: %+v", err)
				time.Sleep(time.Millisecond)
			}
			continue
		}

		total++
		if *printEvery > 0 && total%uint64(*printEvery) == 0 {
			logTick(msg)
		}
	}
}

func attach(ctx *shmbus.Context, topic string, wait time.Duration) (*shmbus.Subscriber, error) {
	deadline := time.Now().Add(wait)
	for {
		sub, err := ctx.NewSubscriber(topic)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, exception.ErrTopicNotFound) || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func pollControl(ctl *shmbus.Subscriber) bool {
	payload, err := ctl.Recv()
	if err != nil {
		return false
	}
	cmd, err := shmbus.DecodeCommand(payload)
	if err != nil {
		logs.Errorf("control payload, err: %+v", err)
		return false
	}
	return cmd.Name == shmbus.CommandStop
}

func logTick(msg shmbus.Message) {
	sent, payload, err := shmbus.UnwrapEnvelope(msg.Payload)
	if err != nil {
		logs.Errorf("unwrap tick, err: %+v", err)
		return
	}
	var t tick
	if err := json.Unmarshal(payload, &t); err != nil {
		logs.Errorf("decode tick, err: %+v", err)
		return
	}
	logs.Infof("tick seq=%d pub=%d %s price=%v qty=%v wire_latency=%s",
		msg.Seq, msg.PubID, t.Symbol, t.Price, t.Qty, time.Since(sent))
}
