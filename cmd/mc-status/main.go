package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/itzg/go-flagsfiller"
	"github.com/s7tya/managed-minecraft-server/mcproto"
	"github.com/sirupsen/logrus"
)

// mc-status queries one server once and prints its status as JSON
type config struct {
	Address  string        `default:"localhost:25565" usage:"The [host:port] of the server to query"`
	Timeout  time.Duration `default:"5s" usage:"Connect and read timeout"`
	Protocol int           `default:"-1" usage:"Protocol version announced in the handshake"`
	Debug    bool          `usage:"Enable debug logs"`
}

func main() {
	var cfg config
	filler := flagsfiller.New(flagsfiller.WithEnv("MC_STATUS"))
	if err := filler.Fill(flag.CommandLine, &cfg); err != nil {
		logrus.WithError(err).Fatal("Unable to set up configuration")
	}
	flag.Parse()

	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	client := mcproto.NewStatusClient(cfg.Timeout)
	client.ProtocolVersion = mcproto.ProtocolVersion(cfg.Protocol)

	status, err := client.Query(context.Background(), cfg.Address)
	if err != nil {
		logrus.WithError(err).WithField("address", cfg.Address).Error("Status query failed")
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(status); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
