// Command posewatch tails a running client's pose feed and prints
// each sample.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumenvr/go-lumen/internal/log"
	"github.com/lumenvr/go-lumen/pkg/monitor"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "Monitor address to connect to")
	raw := flag.Bool("raw", false, "Print raw JSON instead of formatted lines")
	flag.Parse()

	log.Init("info")
	url := fmt.Sprintf("ws://%s/ws/pose", *addr)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		log.Error("connect", "url", url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	log.Info("watching pose feed", "url", url)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		// Closing the connection unblocks the read loop.
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info("feed closed", "error", err)
			return
		}
		if *raw {
			fmt.Println(string(data))
			continue
		}
		var u monitor.PoseUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			log.Warn("bad feed message", "error", err)
			continue
		}
		fmt.Printf("%s  state=%-9s  pos=(%+.3f %+.3f %+.3f)  quat=(%+.3f %+.3f %+.3f %+.3f)\n",
			u.Timestamp.Format("15:04:05.000"), u.State,
			u.Position[0], u.Position[1], u.Position[2],
			u.Orientation[0], u.Orientation[1], u.Orientation[2], u.Orientation[3])
	}
}
