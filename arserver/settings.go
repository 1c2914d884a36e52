package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/vaughan0/go-ini"
)

const maxLogFiles = 10

type settings struct {
	Listen           string // control protocol listen address
	ListenPrometheus string // listen addr for metrics

	RootDir string

	Filter       string
	PollInterval time.Duration
	VerifyDelay  time.Duration
	Chime        bool
	NamesFile    string
	RestoreRoute bool

	// log section
	LogFile    string // log filename
	DebugLevel string // debug level config string
}

func obtainSettings() (*settings, error) {
	// setup default paths
	usr, err := user.Current()
	if err != nil {
		return nil, err
	}

	// config file
	rootDir := filepath.Join(usr.HomeDir, ".arserver")
	filename := flag.String("cfg", filepath.Join(rootDir, "arserver.conf"), "config file")
	versionFlag := flag.Bool("version", false, "show version")
	showCfgFlag := flag.Bool("showcfg", false, "show environment and config information")
	flag.Parse()

	println := func(format string, args ...interface{}) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	if *versionFlag || *showCfgFlag {
		println("arserver %s (%s)", version(), runtime.Version())
	}
	if *versionFlag {
		os.Exit(0)
	}
	if *showCfgFlag {
		println("Username: %s", usr.Username)
		println("Home dir: %s", usr.HomeDir)
		println("Root dir: %s", rootDir)
		println("Config file path: %s", *filename)
	}

	// Default settings.
	s := &settings{
		Listen:       "127.0.0.1:7345",
		RootDir:      rootDir,
		Filter:       "communication",
		PollInterval: 2 * time.Second,
		VerifyDelay:  300 * time.Millisecond,
		NamesFile:    filepath.Join(rootDir, "devicenames.toml"),
		RestoreRoute: true,
		LogFile:      filepath.Join(rootDir, "logs", "arserver.log"),
		DebugLevel:   "info",
	}

	// parse file
	cfg, err := ini.LoadFile(*filename)
	if os.IsNotExist(err) {
		// Missing config file runs on defaults.
		return s, nil
	} else if err != nil {
		return nil, err
	}

	if *showCfgFlag {
		println("Config file successfully loaded!")
	}

	get := func(v *string, section, field string) bool {
		s, ok := cfg.Get(section, field)
		if ok {
			*v = s
		}
		return ok
	}
	getBool := func(b *bool, section, field string) {
		s, ok := cfg.Get(section, field)
		if ok {
			v, err := strconv.ParseBool(s)
			if err == nil {
				*b = v
			}
		}
	}
	getDuration := func(d *time.Duration, section, field string) error {
		s, ok := cfg.Get(section, field)
		if !ok {
			return nil
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid %s.%s: %v", section, field, err)
		}
		*d = v
		return nil
	}

	get(&s.Listen, "", "listen")
	get(&s.ListenPrometheus, "", "listenprometheus")
	get(&s.RootDir, "", "rootdir")
	get(&s.Filter, "", "filter")
	if err := getDuration(&s.PollInterval, "", "pollinterval"); err != nil {
		return nil, err
	}
	if err := getDuration(&s.VerifyDelay, "", "verifydelay"); err != nil {
		return nil, err
	}
	getBool(&s.Chime, "", "chime")
	get(&s.NamesFile, "", "namesfile")
	getBool(&s.RestoreRoute, "", "restoreroute")

	get(&s.LogFile, "log", "logfile")
	get(&s.DebugLevel, "log", "debuglevel")

	return s, nil
}
