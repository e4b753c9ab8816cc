// bridge relays one topic across a Unix domain socket: serve mode
// streams every message to connected peers, connect mode republishes a
// remote stream into the local segment namespace. Each side keeps its
// own ring; the socket only ever carries framed payload bytes.
package main

import (
	"errors"
	"flag"
	"net"
	"os"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/vedarsh/kachow/pkg/exception"
	"github.com/vedarsh/kachow/pkg/shmbus"
	"github.com/vedarsh/kachow/pkg/uds"
)

func main() {
	mode := flag.String("mode", "serve", "serve | connect")
	socket := flag.String("socket", "/tmp/kachow-bridge.sock", "Unix socket path")
	topic := flag.String("topic", "ticks", "Topic to relay")
	dir := flag.String("dir", "", "Segment namespace directory (default /dev/shm)")
	slotCount := flag.Uint("slot-count", 4096, "Ring slot count (connect mode)")
	slotSize := flag.Uint("slot-size", 1024, "Ring slot payload capacity (connect mode)")
	flag.Parse()

	ctx, err := shmbus.Init(shmbus.Config{AppName: "bridge", Dir: *dir})
	if err != nil {
		logs.Errorf("init context, err: %+v", err)
		os.Exit(1)
	}
	defer ctx.Shutdown()

	switch *mode {
	case "serve":
		serve(ctx, *socket, *topic)
	case "connect":
		connect(ctx, *socket, *topic, uint32(*slotCount), uint32(*slotSize))
	default:
		logs.Errorf("unknown mode: %s", *mode)
		os.Exit(1)
	}
}

// serve streams the topic to every connected peer. Each connection gets
// its own subscriber, so one slow peer only overruns its own cursor.
func serve(ctx *shmbus.Context, socket, topic string) {
	ln, err := uds.Listen(socket)
	if err != nil {
		logs.Errorf("listen %s, err: %+v", socket, err)
		os.Exit(1)
	}
	defer ln.Close()
	logs.Infof("bridge serving: topic=%s socket=%s", topic, socket)

	go func() {
		<-sys.Shutdown()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-sys.Shutdown():
				return
			default:
			}
			logs.Errorf("accept, err: %+v", err)
			return
		}
		go streamTo(ctx, conn, topic)
	}
}

func streamTo(ctx *shmbus.Context, conn *net.UnixConn, topic string) {
	defer conn.Close()
	sub, err := ctx.NewSubscriber(topic)
	if err != nil {
		logs.Errorf("attach %s, err: %+v", topic, err)
		return
	}
	defer sub.Close()

	for {
		select {
		case <-sys.Shutdown():
			return
		default:
		}
		payload, err := sub.Recv()
		if err != nil {
			var overrun *exception.OverrunError
			switch {
			case errors.Is(err, exception.ErrNoData):
				time.Sleep(time.Millisecond)
			case errors.As(err, &overrun):
				logs.Errorf("peer %s fell behind, skipped %d", conn.RemoteAddr(), overrun.Skipped)
			default:
				return
			}
			continue
		}
		if err := uds.WriteFrame(conn, payload); err != nil {
			logs.Infof("peer %s gone: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// connect republishes a remote stream into a local ring. MWMR so
// several bridges can fan into one topic.
func connect(ctx *shmbus.Context, socket, topic string, slotCount, slotSize uint32) {
	conn, err := uds.Dial(socket)
	if err != nil {
		logs.Errorf("dial %s, err: %+v", socket, err)
		os.Exit(1)
	}
	defer conn.Close()

	pub, err := ctx.NewPublisher(shmbus.Options{
		Topic:     topic,
		RingType:  shmbus.MWMR,
		SlotCount: slotCount,
		SlotSize:  slotSize,
	})
	if err != nil {
		logs.Errorf("create publisher, err: %+v", err)
		os.Exit(1)
	}
	logs.Infof("bridge connected: topic=%s socket=%s", topic, socket)

	go func() {
		<-sys.Shutdown()
		conn.Close()
	}()

	buf := make([]byte, slotSize)
	for {
		n, err := uds.ReadFrame(conn, buf)
		if err != nil {
			select {
			case <-sys.Shutdown():
				return
			default:
			}
			logs.Errorf("read frame, err: %+v", err)
			return
		}
		if err := pub.Send(buf[:n]); err != nil {
			logs.Errorf("republish, err: %+v", err)
		}
	}
}
