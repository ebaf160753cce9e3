// Package logging centralizes the logrus configuration shared by every
// command-line tool.
package logging

import (
	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logger's level from a -v flag count: 0 is
// warn, 1 is info, 2 or more is debug.
func Setup(verbosity int) {
	switch {
	case verbosity >= 2:
		log.SetLevel(log.DebugLevel)
	case verbosity == 1:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
