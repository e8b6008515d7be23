package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/informalsystems/wsproxy-load-test/internal/echoproxy"
	"github.com/informalsystems/wsproxy-load-test/internal/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		addr         = flag.String("addr", "localhost:8887", "the address to which to bind this server")
		delay        = flag.Duration("delay", 0, "how long to wait before answering each message")
		username     = flag.String("u", "", "the username for clients authenticating against this server (optional)")
		passwordHash = flag.String("p", "", "a bcrypt password hash for authenticating clients (required if -u is given)")
		verbose      = flag.Bool("v", false, "increase output logging verbosity to DEBUG level")
	)
	flag.Usage = func() {
		fmt.Println(`WebSockets-to-CoAP echo proxy

Accepts WebSockets connections and answers every binary CoAP request received
on them with a piggybacked 2.05 (Content) acknowledgement carrying the same
message ID and token. Text messages are echoed back verbatim. Use this to dry
run wsproxy-load-test without a real proxy and CoAP server.

Usage:
  wsproxy-echo -addr localhost:8887

To require HTTP basic authentication from clients:
  wsproxy-echo \
    -addr localhost:8887 \
    -u wsproxy-load-test \
    -p "#2a#12#ac6f8zq9vvugNb3QXeOV9.RGFHeu8a7qhf9WIRAfH69a0k2j7J7wy"

Dollar signs ($) in the bcrypt hash may be replaced with hash symbols (#) to
avoid having to escape them. Clients then connect using
ws://wsproxy-load-test:<password>@localhost:8887

Flags:`)
		flag.PrintDefaults()
		fmt.Println("")
	}
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logger := logging.NewLogrusLogger("echoproxy")

	opts := []echoproxy.Option{
		echoproxy.WithDelay(*delay),
		echoproxy.WithLogger(logger),
	}
	if len(*username) > 0 {
		if len(*passwordHash) == 0 {
			fmt.Println("Error: a bcrypt password hash is required when a username is given")
			os.Exit(1)
		}
		opts = append(opts, echoproxy.WithBasicAuth(*username, strings.ReplaceAll(*passwordHash, "#", "$")))
	}

	svr := &http.Server{
		Addr:              *addr,
		Handler:           echoproxy.NewServer(opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Starting echo proxy", "addr", *addr, "delay", delay.String())
	if err := svr.ListenAndServe(); err != nil {
		logger.Error("Server shut down", "err", err)
		os.Exit(1)
	}
}
