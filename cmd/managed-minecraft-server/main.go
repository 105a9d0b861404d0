package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/itzg/go-flagsfiller"
	"github.com/s7tya/managed-minecraft-server/server"
	"github.com/sirupsen/logrus"
)

var (
	versionFlag = flag.Bool("version", false, "Output version and exit")
	debug       = flag.Bool("debug", false, "Enable debug logs")
	trace       = flag.Bool("trace", false, "Enable trace logs")
	logFormat   = flag.String("log-format", "text", "Log output format: text or json")
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func showVersion() {
	fmt.Printf("%v, commit %v, built at %v\n", version, commit, date)
}

func main() {
	var config server.Config

	// every option can also be given as an environment variable, such as BACKEND_ADDRESS
	filler := flagsfiller.New(flagsfiller.WithEnv(""))
	if err := filler.Fill(flag.CommandLine, &config); err != nil {
		logrus.WithError(err).Fatal("Unable to set up configuration")
	}
	flag.Parse()

	if *versionFlag {
		showVersion()
		os.Exit(0)
	}

	if *logFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if *trace {
		logrus.SetLevel(logrus.TraceLevel)
	} else if *debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.Debug("Debug logs enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := server.NewServer(ctx, &config)
	if err != nil {
		logrus.WithError(err).Fatal("Could not setup server")
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range signals {
			switch sig {
			case syscall.SIGHUP:
				logrus.Info("Received SIGHUP, reloading asleep status config")
				s.ReloadConfig()
			default:
				logrus.WithField("signal", sig).Info("Stopping")
				cancel()
				return
			}
		}
	}()

	logrus.
		WithField("version", version).
		WithField("backend", config.Backend.Address).
		WithField("provider", config.Instance.Provider).
		Info("Starting managed Minecraft server proxy")
	s.Run()
}
