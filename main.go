/*
Demo application driving the engine: a grid of textured cubes streamed in
through the asynchronous upload pipeline while the stereo loop keeps running.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/parallax/engine"
	"github.com/spaghettifunk/parallax/engine/config"
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/testbed"
)

func main() {
	cfg := config.Default()
	if len(os.Args) > 1 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			core.LogFatal(err.Error())
		}
		cfg = loaded
	}

	tb := testbed.NewTestGame(cfg)

	e, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		e.RequestShutdown()
	}()

	if err := e.Run(); err != nil {
		panic(err)
	}
}
