// topicctl is the admin tool for a segment namespace: list topics,
// inspect ring geometry, export health JSON, follow a topic live,
// pre-provision a topic set from a config file, and unlink orphaned
// segments.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/yanun0323/pkg/sys"

	"github.com/vedarsh/kachow/internal/obs"
	"github.com/vedarsh/kachow/internal/ops"
	"github.com/vedarsh/kachow/pkg/exception"
	"github.com/vedarsh/kachow/pkg/shmbus"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: topicctl [-dir DIR] <command> [args]
Commands:
  list                 List all topics
  stat <topic>         Show topic ring details
  health <topic>       Export topic health as JSON
  tail <topic>         Follow topic data
  unlink <topic>       Remove a topic's segment
  init -config FILE    Pre-provision topics from a JSON config
`)
	os.Exit(1)
}

func main() {
	dir := flag.String("dir", "", "Segment namespace directory (default /dev/shm)")
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	ctx, err := shmbus.Init(shmbus.Config{AppName: "topicctl", LogLevel: shmbus.LogWarn, Dir: *dir})
	if err != nil {
		fatalf("init: %v", err)
	}
	defer ctx.Shutdown()

	switch args[0] {
	case "list":
		doList(ctx)
	case "stat":
		requireTopic(args)
		doStat(ctx, args[1])
	case "health":
		requireTopic(args)
		doHealth(ctx, args[1])
	case "tail":
		requireTopic(args)
		doTail(ctx, args[1])
	case "unlink":
		requireTopic(args)
		if err := ctx.Unlink(args[1]); err != nil {
			fatalf("unlink %s: %v", args[1], err)
		}
		fmt.Printf("unlinked %s\n", args[1])
	case "init":
		doInit(ctx, args[1:])
	default:
		usage()
	}
}

func requireTopic(args []string) {
	if len(args) < 2 {
		usage()
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func doList(ctx *shmbus.Context) {
	topics, err := ctx.Topics()
	if err != nil {
		fatalf("list: %v", err)
	}
	fmt.Printf("%-24s | %-5s | %-8s | %-9s | %-12s | %s\n",
		"NAME", "TYPE", "SLOTS", "SLOT SIZE", "MESSAGES", "STATE")
	for _, t := range topics {
		st, err := ctx.Stat(t)
		if err != nil {
			fmt.Printf("%-24s | (unreadable: %v)\n", t, err)
			continue
		}
		fmt.Printf("%-24s | %-5s | %-8d | %-9d | %-12d | %s\n",
			st.Topic, st.RingType, st.SlotCount, st.SlotSize, st.Head, st.State)
	}
}

func doStat(ctx *shmbus.Context, topic string) {
	st, err := ctx.Stat(topic)
	if err != nil {
		fatalf("stat %s: %v", topic, err)
	}
	fmt.Printf("Topic: %s\n", st.Topic)
	fmt.Printf("Type:  %s\n", st.RingType)
	fmt.Printf("State: %s\n", st.State)
	fmt.Printf("Head:  %d (oldest available %d)\n", st.Head, st.OldestAvailable)
	fmt.Printf("Slots: %d x %d bytes\n", st.SlotCount, st.SlotSize)
	if st.LastPublishNs != 0 {
		fmt.Printf("Last publish: %s ago\n", time.Since(time.Unix(0, int64(st.LastPublishNs))).Round(time.Millisecond))
	} else {
		fmt.Printf("Last publish: never\n")
	}
}

func doHealth(ctx *shmbus.Context, topic string) {
	st, err := ctx.Stat(topic)
	if err != nil {
		fatalf("health %s: %v", topic, err)
	}
	sub, err := ctx.NewSubscriber(topic)
	if err != nil {
		fatalf("health %s: %v", topic, err)
	}
	defer sub.Close()

	statJSON, _ := json.MarshalIndent(st, "", "  ")
	rows, err := obs.ExportJSON([]shmbus.HandleHealth{sub.Health()})
	if err != nil {
		fatalf("health %s: %v", topic, err)
	}
	fmt.Printf("%s\n%s\n", statJSON, rows)
}

func doTail(ctx *shmbus.Context, topic string) {
	sub, err := ctx.NewSubscriber(topic)
	if err != nil {
		fatalf("tail %s: %v", topic, err)
	}
	defer sub.Close()

	// Drain the backlog so the tail shows new messages only.
	buf := make([]byte, 16<<10)
	for {
		if _, err := sub.RecvInto(buf); errors.Is(err, exception.ErrNoData) {
			break
		}
	}

	fmt.Printf("Tailing %s (Ctrl+C to stop)...\n", topic)
	for {
		select {
		case <-sys.Shutdown():
			return
		default:
		}
		msg, err := sub.RecvMsg()
		if err != nil {
			var overrun *exception.OverrunError
			switch {
			case errors.Is(err, exception.ErrNoData):
				time.Sleep(time.Millisecond)
			case errors.As(err, &overrun):
				fmt.Printf("(overrun: %d messages skipped)\n", overrun.Skipped)
			default:
				fatalf("tail %s: %v", topic, err)
			}
			continue
		}
		printMessage(msg)
	}
}

func printMessage(msg shmbus.Message) {
	body := msg.Payload
	if ts, inner, err := shmbus.UnwrapEnvelope(msg.Payload); err == nil {
		fmt.Printf("[%d seq=%d %s] ", msg.PubID, msg.Seq, ts.Format("15:04:05.000"))
		body = inner
	} else {
		fmt.Printf("[%d seq=%d] ", msg.PubID, msg.Seq)
	}
	switch {
	case len(body) == 0:
		fmt.Println("(empty message)")
	case isPrintable(body):
		fmt.Printf("%s\n", body)
	default:
		n := len(body)
		if n > 16 {
			n = 16
		}
		fmt.Printf("(%d bytes) % X\n", len(body), body[:n])
	}
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func doInit(ctx *shmbus.Context, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to JSON topic config")
	fs.Parse(args)
	if *configPath == "" {
		usage()
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		fatalf("config load: %v", err)
	}
	if _, err := ops.Provision(ctx, loaded.Topics); err != nil {
		fatalf("provision: %v", err)
	}
	for _, t := range loaded.Topics {
		fmt.Printf("provisioned %s (%s)\n", t.Topic, t.RingType)
	}
	// Exit without closing the publishers: segment files outlive the
	// process, which is the whole point of pre-provisioning. Closing
	// them here would unlink the rings we just created.
	os.Exit(0)
}
