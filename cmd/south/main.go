package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/fogwell/fogwell/cmd/south/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		log.WithError(err).Error("south exited with an error")
		os.Exit(1)
	}
}
