/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package main is a simple single-network gadgets process that reads
// from stdin and writes to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Comcast/gadgets/sio"

	"github.com/rs/zerolog"
)

func main() {
	io := sio.NewStdio(true)

	flag.BoolVar(&io.EchoInput, "echo", false, "echo input")
	flag.BoolVar(&io.Timestamps, "ts", false, "print timestamps")
	flag.BoolVar(&io.ShellExpand, "sh", false, "shell-expand input")
	flag.BoolVar(&io.PadTags, "pad", false, "pad tags")
	flag.BoolVar(&io.Tags, "tags", true, "tags")

	var (
		netFile   = flag.String("net-file", "", "network spec filename")
		wait      = flag.Duration("wait", time.Second, "wait this long before shutting down couplings")
		haltOnEOF = flag.Bool("halt-on-eof", false, "stop on input EOF")
		verbose   = flag.Bool("v", false, "verbose")
	)

	flag.Parse()

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *netFile == "" {
		fmt.Fprintln(os.Stderr, "-net-file is required")
		os.Exit(1)
	}

	ns, err := sio.LoadNetSpec(*netFile)
	if err != nil {
		panic(err)
	}

	n, err := sio.NewNetwork(ctx, ns, io)
	if err != nil {
		panic(err)
	}
	n.Log = logger
	n.HaltOnInputEOF = *haltOnEOF

	if err = io.Start(ctx); err != nil {
		panic(err)
	}

	go func() {
		<-io.InputEOF
		logger.Debug().Msgf("input EOF (%v)", *wait)
		time.Sleep(*wait)
		cancel()
	}()

	if err := n.Loop(ctx); err != nil {
		panic(err)
	}

	if err = io.Stop(context.Background()); err != nil {
		panic(err)
	}
}
