package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
)

const (
	FormatText = "text"
	FormatJson = "json"
)

// ConfigureLogging sets up the standard logrus logger for an application.
// format is either "text" (coloured, full timestamps) or "json".
func ConfigureLogging(level string, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.WithStack(err)
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stdout)

	switch strings.ToLower(format) {
	case "", FormatText:
		log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	case FormatJson:
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", format)
	}
	return nil
}

// ExportLogCounts adds a hook to the standard logger that counts log lines per level as a prometheus metric.
func ExportLogCounts() error {
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		return errors.WithMessage(err, "error creating prometheus logging hook")
	}
	log.AddHook(hook)
	return nil
}
