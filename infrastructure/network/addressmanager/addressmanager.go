// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addressmanager

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/infrastructure/db/ldb"
)

const (
	maxAddresses = 4096

	// defaultBanDuration is how long a banned IP stays banned.
	defaultBanDuration = 24 * time.Hour
)

// addressKey represents a pair of IP and port, the IP is always in V6 representation
type addressKey struct {
	port    uint16
	address ipv6
}

type ipv6 [net.IPv6len]byte

func (i ipv6) equal(other ipv6) bool {
	return i == other
}

// address is what the address manager knows about an address.
type address struct {
	netAddress            *appmessage.NetAddress
	lastSeen              time.Time
	connectionFailedCount uint64
}

// ErrAddressNotFound is an error returned from some functions when a
// given address is not found in the address manager
var ErrAddressNotFound = errors.New("address not found")

// netAddressKey returns a key of the ip address to use it in maps.
func netAddressKey(netAddress *appmessage.NetAddress) addressKey {
	key := addressKey{port: netAddress.Port}
	// all IPv4 can be represented as IPv6.
	copy(key.address[:], netAddress.IP.To16())
	return key
}

// Config is a descriptor which specifies the AddressManager instance configuration.
type Config struct {
	// BanDuration is how long Ban keeps an IP banned. Zero means the
	// default of 24 hours.
	BanDuration time.Duration
}

// AddressManager provides a concurrency safe book of the peers this node
// completed a handshake with, and of the IPs it banned.
type AddressManager struct {
	store *addressStore
	mutex sync.Mutex
	cfg   *Config
	now   func() time.Time
}

// New returns a new address manager. The addresses in database, if any,
// are loaded. A nil database keeps everything in memory.
func New(cfg *Config, database *ldb.LevelDB) (*AddressManager, error) {
	addressStore, err := newAddressStore(database)
	if err != nil {
		return nil, err
	}
	if cfg.BanDuration == 0 {
		cfg.BanDuration = defaultBanDuration
	}

	return &AddressManager{
		store: addressStore,
		cfg:   cfg,
		now:   time.Now,
	}, nil
}

func (am *AddressManager) addAddressNoLock(netAddress *appmessage.NetAddress) error {
	key := netAddressKey(netAddress)
	if am.store.isNotBanned(key) {
		return nil
	}
	address := &address{netAddress: netAddress, lastSeen: am.now()}
	err := am.store.add(key, address)
	if err != nil {
		return err
	}

	if am.store.notBannedCount() > maxAddresses {
		allAddresses := am.store.getAllNotBanned()

		toRemove := allAddresses[0]
		for _, address := range allAddresses[1:] {
			if address.connectionFailedCount > toRemove.connectionFailedCount ||
				(address.connectionFailedCount == toRemove.connectionFailedCount &&
					address.lastSeen.Before(toRemove.lastSeen)) {
				toRemove = address
			}
		}

		toRemoveKey := netAddressKey(toRemove.netAddress)
		err := am.store.remove(toRemoveKey)
		if err != nil {
			return err
		}
	}
	return nil
}

// MarkConnectionFailure notifies the address manager that the given address
// has failed to connect
func (am *AddressManager) MarkConnectionFailure(address *appmessage.NetAddress) error {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	key := netAddressKey(address)
	entry, ok := am.store.getNotBanned(key)
	if !ok {
		return errors.Wrapf(ErrAddressNotFound, "address %s is not registered with the address manager", address)
	}
	entry.connectionFailedCount++
	return am.store.update(key, entry)
}

// MarkConnectionSuccess records that a handshake with address completed,
// adding the address if it isn't known yet.
func (am *AddressManager) MarkConnectionSuccess(address *appmessage.NetAddress) error {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	key := netAddressKey(address)
	entry, ok := am.store.getNotBanned(key)
	if !ok {
		return am.addAddressNoLock(address)
	}
	entry.netAddress = address
	entry.lastSeen = am.now()
	entry.connectionFailedCount = 0
	return am.store.update(key, entry)
}

// Addresses returns all addresses
func (am *AddressManager) Addresses() []*appmessage.NetAddress {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	return am.store.getAllNotBannedNetAddresses()
}

// BannedAddresses returns all banned addresses
func (am *AddressManager) BannedAddresses() []*appmessage.NetAddress {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	return am.store.getAllBannedNetAddresses()
}

// Ban marks the IP of the given address as banned, forgetting every
// address with that IP.
func (am *AddressManager) Ban(addressToBan *appmessage.NetAddress) error {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	keyToBan := netAddressKey(addressToBan)
	keysToDelete := make([]addressKey, 0)
	for _, address := range am.store.getAllNotBannedNetAddresses() {
		key := netAddressKey(address)
		if key.address.equal(keyToBan.address) {
			keysToDelete = append(keysToDelete, key)
		}
	}
	for _, key := range keysToDelete {
		err := am.store.remove(key)
		if err != nil {
			return err
		}
	}

	address := &address{netAddress: addressToBan, lastSeen: am.now()}
	return am.store.addBanned(keyToBan, address)
}

// IsBanned returns true if the IP of the given address is banned. Bans
// older than the ban duration are lifted on the way.
func (am *AddressManager) IsBanned(address *appmessage.NetAddress) (bool, error) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	key := netAddressKey(address)
	err := am.unbanIfOldEnough(key)
	if err != nil {
		return false, err
	}
	return am.store.isBanned(key), nil
}

func (am *AddressManager) unbanIfOldEnough(key addressKey) error {
	address, ok := am.store.getBanned(key)
	if !ok {
		return nil
	}

	if am.now().Sub(address.lastSeen) > am.cfg.BanDuration {
		err := am.store.removeBanned(key)
		if err != nil {
			return err
		}
	}
	return nil
}
