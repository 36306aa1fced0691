package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/slpdexdb/slpdexd/app/appmessage"
)

func tempAppDir(t *testing.T) string {
	appDir, err := ioutil.TempDir("", "slpdexd")
	if err != nil {
		t.Fatalf("Failed creating a temporary directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(appDir) })
	return appDir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.NetParams().Net != appmessage.MainNet {
		t.Errorf("NetParams: got %s, want %s", cfg.NetParams().Net, appmessage.MainNet)
	}
	if cfg.MinProtocolVersion != 70001 {
		t.Errorf("MinProtocolVersion: got %d, want 70001", cfg.MinProtocolVersion)
	}
	if cfg.MaxMessageSize != 32*1024*1024 {
		t.Errorf("MaxMessageSize: got %d, want %d", cfg.MaxMessageSize, 32*1024*1024)
	}
	if cfg.HandshakeTimeout != 30*time.Second {
		t.Errorf("HandshakeTimeout: got %s, want 30s", cfg.HandshakeTimeout)
	}
	if cfg.Dial == nil {
		t.Errorf("Dial: got nil")
	}
}

func TestLoadConfig(t *testing.T) {
	appDir := tempAppDir(t)
	args := []string{
		"--appdir=" + appDir,
		"--regtest",
		"--connect=127.0.0.1",
		"--connect=127.0.0.1:18444",
		"--connect=10.0.0.1:1234",
		"--observe=tx",
		"--uacomment=indexer",
	}

	cfg, err := loadConfig(args)
	if err != nil {
		t.Fatalf("loadConfig: %+v", err)
	}

	if cfg.NetParams() != &RegressionNetParams {
		t.Errorf("NetParams: got %s, want %s", cfg.NetParams().Name, RegressionNetParams.Name)
	}
	wantPeers := []string{"127.0.0.1:18444", "10.0.0.1:1234"}
	if !reflect.DeepEqual(cfg.ConnectPeers, wantPeers) {
		t.Errorf("ConnectPeers: got %v, want %v", cfg.ConnectPeers, wantPeers)
	}
	if !cfg.DisableListen {
		t.Errorf("DisableListen: --connect without --listen should disable listening")
	}
	if !reflect.DeepEqual(cfg.Listeners, []string{":18444"}) {
		t.Errorf("Listeners: got %v, want [:18444]", cfg.Listeners)
	}
	if want := filepath.Join(appDir, "data", "regtest"); cfg.DataDir != want {
		t.Errorf("DataDir: got %s, want %s", cfg.DataDir, want)
	}
	if want := filepath.Join(appDir, "logs", "regtest", "slpdexd.log"); cfg.LogFile() != want {
		t.Errorf("LogFile: got %s, want %s", cfg.LogFile(), want)
	}
	if !reflect.DeepEqual(cfg.ObserveCommands, []string{"tx"}) {
		t.Errorf("ObserveCommands: got %v, want [tx]", cfg.ObserveCommands)
	}
	if cfg.Dial == nil {
		t.Errorf("Dial: got nil")
	}
}

func TestLoadConfigFile(t *testing.T) {
	appDir := tempAppDir(t)
	configFile := filepath.Join(appDir, defaultConfigFilename)
	content := "[Application Options]\nmaxmessagesize=2048\nhandshaketimeout=5s\n"
	err := ioutil.WriteFile(configFile, []byte(content), 0644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := loadConfig([]string{"--appdir=" + appDir, "--handshaketimeout=10s"})
	if err != nil {
		t.Fatalf("loadConfig: %+v", err)
	}
	if cfg.MaxMessageSize != 2048 {
		t.Errorf("MaxMessageSize: got %d, want 2048 from the config file", cfg.MaxMessageSize)
	}
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout: got %s, the command line should win over the config file",
			cfg.HandshakeTimeout)
	}
	if cfg.NetParams() != &MainNetParams {
		t.Errorf("NetParams: got %s, want mainnet", cfg.NetParams().Name)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	appDir := tempAppDir(t)

	tests := []struct {
		name string
		args []string
	}{
		{"two networks", []string{"--testnet", "--regtest"}},
		{"min version too high", []string{"--minprotocolversion=80000"}},
		{"tiny max message size", []string{"--maxmessagesize=10"}},
		{"short handshake timeout", []string{"--handshaketimeout=10ms"}},
		{"reserved ua comment characters", []string{"--uacomment=bad/comment"}},
		{"long observe command", []string{"--observe=waytoolongcommand"}},
		{"proxy without port", []string{"--proxy=127.0.0.1"}},
		{"metrics without port", []string{"--metricslisten=localhost"}},
		{"unknown flag", []string{"--nosuchflag"}},
	}

	for _, test := range tests {
		args := append([]string{"--appdir=" + appDir}, test.args...)
		_, err := loadConfig(args)
		if err == nil {
			t.Errorf("loadConfig %s: expected an error", test.name)
		}
	}
}

func TestNormalizeAddresses(t *testing.T) {
	got := normalizeAddresses([]string{"a", "a:8333", "b:1", "::1", "[::1]:8333"}, "8333")
	want := []string{"a:8333", "b:1", "[::1]:8333"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalizeAddresses: got %v, want %v", got, want)
	}
}
