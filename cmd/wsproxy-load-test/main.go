package main

import (
	"github.com/informalsystems/wsproxy-load-test/pkg/loadtest"
)

const appLongDesc = `Load testing application for WebSockets-to-CoAP proxies.
For each of the given concurrency levels, opens that many simultaneous
WebSockets connections to the proxy. Each connection sends a CoAP GET request
for the target URI and, every time the proxy replies, sends it again, until its
measurement window has elapsed. One "level succeeded failed" line is appended
to the output file per concurrency level.

To test 10, 100 and 1000 concurrent connections for 10 seconds each:
    wsproxy-load-test -c 10,100,1000 -T 10s \
        --proxy ws://localhost:8887 \
        --target coap://localhost:5683/target \
        --output wsproxy.txt

Settings may also be supplied in a YAML file (see --config). Flags given
explicitly on the command line take precedence over the file's values.
`

func main() {
	loadtest.Run(&loadtest.CLIConfig{
		AppName:      "wsproxy-load-test",
		AppShortDesc: "Load testing application for WebSockets-to-CoAP proxies",
		AppLongDesc:  appLongDesc,
	})
}
