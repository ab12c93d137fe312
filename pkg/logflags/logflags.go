package logflags

import (
	"errors"
	"io/ioutil"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var crashdump = false
var vtop = false
var pslist = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// CrashDump returns true if the crash dump header parser should log.
func CrashDump() bool {
	return crashdump
}

// CrashDumpLogger returns a configured logger for the crash dump loader.
func CrashDumpLogger() *logrus.Entry {
	return makeLogger(crashdump, logrus.Fields{"layer": "dump", "kind": "crashdump"})
}

// VTop returns true if address translation should be logged.
func VTop() bool {
	return vtop
}

// VTopLogger returns a logger for the address translation layer.
func VTopLogger() *logrus.Entry {
	return makeLogger(vtop, logrus.Fields{"layer": "paging"})
}

// PsList returns true if the process list walker should log.
func PsList() bool {
	return pslist
}

// PsListLogger returns a logger for the process list walker.
func PsListLogger() *logrus.Entry {
	return makeLogger(pslist, logrus.Fields{"layer": "winnt", "kind": "pslist"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the logging flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "pslist"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "crashdump":
			crashdump = true
		case "vtop":
			vtop = true
		case "pslist":
			pslist = true
		}
	}
	return nil
}
