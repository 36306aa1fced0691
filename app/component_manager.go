package app

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/slpdexdb/slpdexd/app/protocol"
	"github.com/slpdexdb/slpdexd/app/protocol/events"
	"github.com/slpdexdb/slpdexd/infrastructure/config"
	"github.com/slpdexdb/slpdexd/infrastructure/db/eventjournal"
	"github.com/slpdexdb/slpdexd/infrastructure/db/ldb"
	"github.com/slpdexdb/slpdexd/infrastructure/logger"
	"github.com/slpdexdb/slpdexd/infrastructure/metrics"
	"github.com/slpdexdb/slpdexd/infrastructure/network/addressmanager"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/id"
	"github.com/slpdexdb/slpdexd/util/panics"
)

// ComponentManager is a wrapper for all the slpdexd services
type ComponentManager struct {
	cfg             *config.Config
	database        *ldb.LevelDB
	journal         *eventjournal.Journal
	addressManager  *addressmanager.AddressManager
	protocolManager *protocol.Manager
	netAdapter      *netadapter.NetAdapter
	metricsServer   *metrics.Server

	started, shutdown int32
}

// Start launches all the slpdexd services.
func (a *ComponentManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Trace("Starting slpdexd")

	if a.metricsServer != nil {
		a.metricsServer.Start()
	}

	err := a.netAdapter.Start()
	if err != nil {
		panics.Exit(log, fmt.Sprintf("Error starting the net adapter: %+v", err))
	}

	for _, address := range a.cfg.ConnectPeers {
		address := address
		spawn("ComponentManager.connect-"+address, func() {
			a.connect(address)
		})
	}
}

func (a *ComponentManager) connect(address string) {
	log.Infof("Connecting to %s", address)
	netConnection, err := a.netAdapter.Connect(address)
	if err != nil {
		log.Warnf("Couldn't connect to %s: %s", address, err)
		return
	}
	log.Debugf("Connected to %s", netConnection)
}

// Stop gracefully shuts down all the slpdexd services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("Slpdexd is already in the process of shutting down")
		return
	}

	log.Warnf("Slpdexd shutting down")

	a.protocolManager.Close()

	err := a.netAdapter.Stop()
	if err != nil {
		log.Errorf("Error stopping the net adapter: %+v", err)
	}

	if a.metricsServer != nil {
		err := a.metricsServer.Stop()
		if err != nil {
			log.Errorf("Error stopping the metrics server: %+v", err)
		}
	}

	if a.database != nil {
		err := a.database.Close()
		if err != nil {
			log.Errorf("Error closing the database: %+v", err)
		}
	}
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config) (*ComponentManager, error) {
	registry := prometheus.NewRegistry()
	nodeMetrics := metrics.New(registry)

	var metricsServer *metrics.Server
	if cfg.MetricsListen != "" {
		var err error
		metricsServer, err = metrics.NewServer(cfg.MetricsListen, registry)
		if err != nil {
			return nil, err
		}
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	var addressManager *addressmanager.AddressManager
	if !cfg.NoAddressBook {
		addressManager, err = addressmanager.New(&addressmanager.Config{}, database)
		if err != nil {
			return nil, err
		}
	}

	sinks := events.MultiSink{events.LogSink{}}
	var journal *eventjournal.Journal
	if !cfg.NoJournal {
		journal, err = eventjournal.New(database)
		if err != nil {
			return nil, err
		}
		log.Infof("Journaling events from sequence %d", journal.NextSequence())
		sinks = append(sinks, journal)
	}

	netAdapter, err := netadapter.NewNetAdapter(cfg, nodeMetrics)
	if err != nil {
		return nil, err
	}

	protocolManager, err := protocol.NewManager(cfg, netAdapter, addressManager,
		events.WithMetrics(sinks, nodeMetrics))
	if err != nil {
		return nil, err
	}

	return &ComponentManager{
		cfg:             cfg,
		database:        database,
		journal:         journal,
		addressManager:  addressManager,
		protocolManager: protocolManager,
		netAdapter:      netAdapter,
		metricsServer:   metricsServer,
	}, nil
}

// openDatabase opens the database under the data directory, or returns
// nil if neither the address book nor the journal needs one.
func openDatabase(cfg *config.Config) (*ldb.LevelDB, error) {
	if cfg.NoAddressBook && cfg.NoJournal {
		return nil, nil
	}
	onEnd := logger.LogAndMeasureExecutionTime(log, "openDatabase")
	defer onEnd()

	err := os.MkdirAll(cfg.DataDir, 0700)
	if err != nil {
		return nil, err
	}
	doesVersionFileExist, err := checkDatabaseVersion(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	log.Infof("Loading database from '%s'", cfg.DataDir)
	database, err := ldb.NewLevelDB(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	if !doesVersionFileExist {
		err := createDatabaseVersionFile(cfg.DataDir)
		if err != nil {
			database.Close()
			return nil, err
		}
	}
	return database, nil
}

// P2PNodeID returns the network ID associated with this ComponentManager
func (a *ComponentManager) P2PNodeID() *id.ID {
	return a.netAdapter.ID()
}

// AddressManager returns the AddressManager associated with this ComponentManager
func (a *ComponentManager) AddressManager() *addressmanager.AddressManager {
	return a.addressManager
}

// ProtocolManager returns the protocol manager associated with this ComponentManager
func (a *ComponentManager) ProtocolManager() *protocol.Manager {
	return a.protocolManager
}
