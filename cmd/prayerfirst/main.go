package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/coreos/go-systemd/v22/daemon"

	"prayerfirst/internal/app"
)

func main() {
	var (
		cfgPath      string
		openURL      string
		testReminder bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&openURL, "open", "", "deep link to open on start, e.g. prayerfirst://prayer")
	flag.BoolVar(&testReminder, "test-reminder", false, "deliver the next reminder right after start")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if openURL != "" {
		a.Open(openURL)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	if testReminder {
		if err := a.SendTestReminder(); err != nil {
			fmt.Println("test reminder:", err)
		}
	}
	// Not running under systemd is fine; SdNotify reports false then.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	// Done closes on a signal (parent context) or on the first fatal error.
	<-a.Done()
	reason := app.StopSignal
	if a.Err() != nil {
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Println("stop:", err)
	}
	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
