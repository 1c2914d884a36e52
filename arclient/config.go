package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/companyzero/audioroute/route"
	"github.com/jrick/flagfile"
	strduration "github.com/xhit/go-str2duration/v2"
)

const appName = "arclient"

// Error to signal loadConfig() completed everything the cmd had to do and
// main() should exit.
var errCmdDone = errors.New("cmd done")

type config struct {
	ServerURL string
	Root      string

	LogFile     string
	MaxLogFiles int
	DebugLevel  string

	Filter       route.FilterMode
	PollInterval time.Duration
	VerifyDelay  time.Duration
	Chime        bool

	PickerTitle string
	NamesFile   string

	RPCListen string
}

// defaultAppDataDir returns the default app data dir for the current OS.
func defaultAppDataDir(homeDir string) string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appName)
		}
	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appName)
		}
	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appName)
		}
	}
	return "."
}

// expandPath expands a leading ~ into the home dir.
func expandPath(homeDir, path string) string {
	if len(path) > 0 && path[0] == '~' {
		path = filepath.Join(homeDir, path[1:])
	}
	return path
}

// loadConfig parses CLI arguments and the config file. The second return
// holds the remaining non-flag arguments (the subcommand and its args).
func loadConfig(args []string) (*config, []string, error) {
	// Setup defaults.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, err
	}
	defaultAppDir := defaultAppDataDir(homeDir)
	defaultCfgFile := filepath.Join(defaultAppDir, appName+".conf")
	defaultLogFile := filepath.Join(defaultAppDir, "applogs", appName+".log")
	defaultNamesFile := filepath.Join(defaultAppDir, "devicenames.toml")

	// Parse CLI arguments.
	fs := flag.NewFlagSet("CLI Arguments", flag.ContinueOnError)
	flagVersion := fs.Bool("version", false, "Display current version and exit")
	flagCfgFile := fs.String("cfg", defaultCfgFile, "Config file to load")
	flagServerURL := fs.String("server", "", "URL of a remote control server (ws://host:port/) instead of the local audio backend")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, errCmdDone
		}
		return nil, nil, err
	}
	cmdArgs := fs.Args()

	if *flagVersion {
		fmt.Println(appName + " " + version())
		return nil, nil, errCmdDone
	}

	cfgFile := *flagCfgFile
	if cfgFile == "" {
		cfgFile = defaultCfgFile
	}
	cfgFile = expandPath(homeDir, cfgFile)

	// Define config file flags.
	fs = flag.NewFlagSet("Config Options", flag.ContinueOnError)
	flagRootDir := fs.String("root", defaultAppDir, "Root of all app data")
	flagCfgServerURL := fs.String("server", "", "URL of a remote control server")
	flagFilter := fs.String("filter", "communication", "Device filter preset (communication, media, all)")
	flagPollInterval := fs.String("pollinterval", "2s", "How often to re-scan audio devices")
	flagVerifyDelay := fs.String("verifydelay", "300ms", "How long to wait before verifying a switch")
	flagChime := fs.Bool("chime", false, "Play a confirmation chime after switching")
	flagPickerTitle := fs.String("pickertitle", "", "Title of the device picker dialog")
	flagNamesFile := fs.String("namesfile", defaultNamesFile, "TOML file with device display name overrides")
	flagRPCListen := fs.String("rpc.listen", "127.0.0.1:7345", "Control server listen address for the serve command")

	// log
	flagLogFile := fs.String("log.logfile", defaultLogFile, "Log file location")
	flagMaxLogFiles := fs.Int("log.maxlogfiles", 3, "Max log files")
	flagDebugLevel := fs.String("log.debuglevel", "info", "Debug Level")

	// Load config from file when it exists. A missing config file is
	// fine: all flags have workable defaults.
	f, err := os.Open(cfgFile)
	if err == nil {
		parser := flagfile.Parser{
			ParseSections: true,
		}
		perr := parser.Parse(f, fs)
		f.Close()
		if perr != nil {
			return nil, nil, fmt.Errorf("unable to parse %s: %w", cfgFile, perr)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, err
	}

	// Sanity check loaded flags.
	filter, err := route.ParseFilterMode(*flagFilter)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid value for flag 'filter': %v", err)
	}
	pollInterval, err := strduration.ParseDuration(*flagPollInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid value for flag 'pollinterval': %v", err)
	}
	verifyDelay, err := strduration.ParseDuration(*flagVerifyDelay)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid value for flag 'verifydelay': %v", err)
	}

	// The CLI -server flag overrides the config file.
	serverURL := *flagCfgServerURL
	if *flagServerURL != "" {
		serverURL = *flagServerURL
	}

	rootDir := expandPath(homeDir, *flagRootDir)

	return &config{
		ServerURL:    serverURL,
		Root:         rootDir,
		LogFile:      expandPath(homeDir, *flagLogFile),
		MaxLogFiles:  *flagMaxLogFiles,
		DebugLevel:   *flagDebugLevel,
		Filter:       filter,
		PollInterval: pollInterval,
		VerifyDelay:  verifyDelay,
		Chime:        *flagChime,
		PickerTitle:  *flagPickerTitle,
		NamesFile:    expandPath(homeDir, *flagNamesFile),
		RPCListen:    *flagRPCListen,
	}, cmdArgs, nil
}
