// cmd/co2ctl/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/tamzrod/co2-poller/internal/console"
	"github.com/tamzrod/co2-poller/internal/frame"
)

var (
	port       = flag.String("port", "/dev/ttyUSB0", "serial port of the sensor")
	baud       = flag.Int("baud", 19200, "baud rate (8N1)")
	addr       = flag.Uint("addr", uint(frame.DefaultT6713Address), "Modbus slave address")
	timeout    = flag.Duration("timeout", time.Second, "per-request timeout")
	evalOnly   = flag.Bool("e", false, "run the command given as arguments and exit")
	outputJSON = flag.Bool("json", false, "print results as JSON")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if *addr > 0xFF {
		fmt.Fprintf(os.Stderr, "co2ctl: address %d out of range\n", *addr)
		os.Exit(2)
	}

	p, err := console.OpenProbe(console.ProbeConfig{
		Port:    *port,
		Baud:    *baud,
		Address: byte(*addr),
		Timeout: *timeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer p.Close()

	sh := console.New(p, !*evalOnly, *outputJSON)
	if err := sh.Run(flag.Args()...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		p.Close()
		glog.Flush()
		os.Exit(1)
	}
}
