// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/go-socks/socks"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/infrastructure/logger"
	"github.com/slpdexdb/slpdexd/version"
)

const (
	defaultConfigFilename = "slpdexd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "slpdexd.log"
	defaultErrLogFilename = "slpdexd_err.log"
	// DefaultConnectTimeout is the default connection timeout when dialing
	DefaultConnectTimeout = time.Second * 30
	// DefaultMinProtocolVersion is the lowest protocol version peers may
	// advertise unless configured otherwise.
	DefaultMinProtocolVersion = 70001
	defaultHandshakeTimeout   = time.Second * 30
	minMaxMessageSize         = 1024
)

var (
	// DefaultAppDir is the default home directory for slpdexd.
	DefaultAppDir = btcutil.AppDataDir("slpdexd", false)

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(DefaultAppDir, defaultLogDirname)
)

// Flags defines the configuration options for slpdexd.
//
// See loadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion        bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile         string        `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir             string        `short:"b" long:"appdir" description:"Directory to store data"`
	LogDir             string        `long:"logdir" description:"Directory to log output."`
	DebugLevel         string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	ConnectPeers       []string      `long:"connect" description:"Connect to the specified peers at startup"`
	Listeners          []string      `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 8333, testnet: 18333, regtest: 18444)"`
	DisableListen      bool          `long:"nolisten" description:"Disable listening for incoming connections -- NOTE: Listening is automatically disabled if the --connect or --proxy options are used without also specifying listen interfaces via --listen"`
	Proxy              string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser          string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass          string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	MinProtocolVersion uint32        `long:"minprotocolversion" description:"Disconnect from peers advertising a lower protocol version"`
	MaxMessageSize     uint32        `long:"maxmessagesize" description:"Maximum payload size of a single message in bytes"`
	HandshakeTimeout   time.Duration `long:"handshaketimeout" description:"Disconnect from peers that haven't completed the handshake in time. Valid time units are {s, m, h}"`
	UserAgentComments  []string      `long:"uacomment" description:"Comment to add to the user agent -- See BIP 14 for more information."`
	ObserveCommands    []string      `long:"observe" description:"Publish every message with this command as an observation event"`
	NoAddressBook      bool          `long:"noaddressbook" description:"Don't record peers that completed a handshake"`
	NoJournal          bool          `long:"nojournal" description:"Don't journal events to disk"`
	MetricsListen      string        `long:"metricslisten" description:"Serve Prometheus metrics on this interface/port (eg. 127.0.0.1:9100)"`
	Profile            string        `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	NetworkFlags
}

// Config defines the configuration options for slpdexd.
//
// See loadConfig for details on the configuration load process.
type Config struct {
	*Flags
	Dial    func(string, string, time.Duration) (net.Conn, error)
	DataDir string
}

// LogFile returns the path of the main log file.
func (cfg *Config) LogFile() string {
	return filepath.Join(cfg.LogDir, defaultLogFilename)
}

// ErrLogFile returns the path of the error log file.
func (cfg *Config) ErrLogFile() string {
	return filepath.Join(cfg.LogDir, defaultErrLogFilename)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	seen := make(map[string]struct{}, len(addrs))
	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		addr = normalizeAddress(addr, defaultPort)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:         defaultConfigFile,
		AppDir:             DefaultAppDir,
		LogDir:             defaultLogDir,
		DebugLevel:         defaultLogLevel,
		MinProtocolVersion: DefaultMinProtocolVersion,
		MaxMessageSize:     appmessage.MaxMessagePayload,
		HandshakeTimeout:   defaultHandshakeTimeout,
	}
}

// DefaultConfig returns the default slpdexd configuration, on mainnet
// and without a config file.
func DefaultConfig() *Config {
	config := &Config{Flags: defaultFlags()}
	config.ActiveNetParams = &MainNetParams
	config.Dial = net.DialTimeout
	config.DataDir = filepath.Join(DefaultAppDir, defaultDataDirname, MainNetParams.Name)
	return config
}

// LoadConfig parses the command line and the config file, initializes the
// logs and returns the resulting configuration.
func LoadConfig() (*Config, error) {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized, the
	// logger variables may be used.
	err = logger.InitLog(cfg.LogFile(), cfg.ErrLogFile())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Parse, validate, and set debug log level(s).
	err = logger.ParseAndSetLogLevels(cfg.DebugLevel)
	if err != nil {
		err := errors.Errorf("LoadConfig: %s", err.Error())
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	return cfg, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in slpdexd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options. Command line options always take precedence.
func loadConfig(args []string) (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := *cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// A custom app dir moves the default config file along with it.
	if preCfg.AppDir != DefaultAppDir && preCfg.ConfigFile == defaultConfigFile {
		preCfg.ConfigFile = filepath.Join(cleanAndExpandPath(preCfg.AppDir), defaultConfigFilename)
		cfgFlags.ConfigFile = preCfg.ConfigFile
	}

	// Load additional config from file. A missing file is fine.
	parser := flags.NewParser(cfgFlags, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "Error parsing config "+
				"file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	cfg := &Config{Flags: cfgFlags}
	err = cfg.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	err = cfg.validate()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}
	return cfg, nil
}

// validate checks the parsed flags and fills in whatever is derived from
// them.
func (cfg *Config) validate() error {
	funcName := "loadConfig"

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.AppDir = cleanAndExpandPath(cfg.AppDir)
	cfg.DataDir = filepath.Join(cfg.AppDir, defaultDataDirname, cfg.NetParams().Name)
	if cfg.LogDir == defaultLogDir && cfg.AppDir != DefaultAppDir {
		cfg.LogDir = filepath.Join(cfg.AppDir, defaultLogDirname)
	}
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.NetParams().Name)

	if cfg.MinProtocolVersion > appmessage.ProtocolVersion {
		str := "%s: the minimum protocol version %d is higher than the " +
			"supported protocol version %d"
		return errors.Errorf(str, funcName, cfg.MinProtocolVersion, appmessage.ProtocolVersion)
	}

	if cfg.MaxMessageSize < minMaxMessageSize {
		str := "%s: the maximum message size may not be less than %d -- parsed [%d]"
		return errors.Errorf(str, funcName, minMaxMessageSize, cfg.MaxMessageSize)
	}

	if cfg.HandshakeTimeout < time.Second {
		str := "%s: the handshaketimeout option may not be less than 1s -- parsed [%s]"
		return errors.Errorf(str, funcName, cfg.HandshakeTimeout)
	}

	// Check the user agent comments for characters BIP 14 reserves.
	for _, uaComment := range cfg.UserAgentComments {
		if strings.ContainsAny(uaComment, "/:()") {
			str := "%s: the following characters must not " +
				"appear in user agent comments: '/', ':', '(', ')'"
			return errors.Errorf(str, funcName)
		}
	}

	for _, command := range cfg.ObserveCommands {
		err := appmessage.ValidateCommand(appmessage.MessageCommand(command))
		if err != nil {
			return errors.Wrapf(err, "%s: invalid --observe command", funcName)
		}
	}

	if cfg.MetricsListen != "" {
		_, _, err := net.SplitHostPort(cfg.MetricsListen)
		if err != nil {
			str := "%s: Metrics listen address '%s' is invalid: %s"
			return errors.Errorf(str, funcName, cfg.MetricsListen, err)
		}
	}

	// Validate profile port number
	if cfg.Profile != "" {
		profilePort, err := strconv.Atoi(cfg.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			str := "%s: The profile port must be between 1024 and 65535"
			return errors.Errorf(str, funcName)
		}
	}

	// --proxy or --connect without --listen disables listening.
	if (cfg.Proxy != "" || len(cfg.ConnectPeers) > 0) &&
		len(cfg.Listeners) == 0 {
		cfg.DisableListen = true
	}

	// Add the default listener if none were specified. The default
	// listener is all addresses on the listen port for the network
	// we are to connect to.
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{
			net.JoinHostPort("", cfg.NetParams().DefaultPort),
		}
	}

	// Add default port to all listener and peer addresses if needed and
	// remove duplicate addresses.
	cfg.Listeners = normalizeAddresses(cfg.Listeners, cfg.NetParams().DefaultPort)
	cfg.ConnectPeers = normalizeAddresses(cfg.ConnectPeers, cfg.NetParams().DefaultPort)

	// Setup the dial function depending on the specified options. The
	// default is to use the standard net.DialTimeout function. When a
	// proxy is specified, the dial function is set to the proxy specific
	// dial function.
	cfg.Dial = net.DialTimeout
	if cfg.Proxy != "" {
		_, _, err := net.SplitHostPort(cfg.Proxy)
		if err != nil {
			str := "%s: Proxy address '%s' is invalid: %s"
			return errors.Errorf(str, funcName, cfg.Proxy, err)
		}

		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		cfg.Dial = proxy.DialTimeout
	}

	return nil
}
