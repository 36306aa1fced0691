package addressmanager

import (
	"bytes"
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/infrastructure/db/ldb"
	"github.com/slpdexdb/slpdexd/util/binaryserializer"
)

var notBannedAddressBucket = ldb.MakeBucket([]byte("addresses"), []byte("not-banned"))
var bannedAddressBucket = ldb.MakeBucket([]byte("addresses"), []byte("banned"))

// serializedAddressLength is ip 16 | port 2 | services 8 | lastSeen 8 |
// connectionFailedCount 8.
const serializedAddressLength = 42

// addressStore keeps the addresses in memory and, when it has a database,
// writes every change through to it.
type addressStore struct {
	database           *ldb.LevelDB
	notBannedAddresses map[addressKey]*address
	bannedAddresses    map[ipv6]*address
}

func newAddressStore(database *ldb.LevelDB) (*addressStore, error) {
	addressStore := &addressStore{
		database:           database,
		notBannedAddresses: map[addressKey]*address{},
		bannedAddresses:    map[ipv6]*address{},
	}
	err := addressStore.restoreNotBannedAddresses()
	if err != nil {
		return nil, err
	}
	err = addressStore.restoreBannedAddresses()
	if err != nil {
		return nil, err
	}

	log.Infof("Loaded %d addresses and %d banned addresses",
		len(addressStore.notBannedAddresses), len(addressStore.bannedAddresses))

	return addressStore, nil
}

func (as *addressStore) restoreNotBannedAddresses() error {
	if as.database == nil {
		return nil
	}
	return as.database.ForEach(notBannedAddressBucket.Path(), func(_ []byte, value []byte) (bool, error) {
		address, err := as.deserializeAddress(value)
		if err != nil {
			return false, err
		}
		as.notBannedAddresses[netAddressKey(address.netAddress)] = address
		return true, nil
	})
}

func (as *addressStore) restoreBannedAddresses() error {
	if as.database == nil {
		return nil
	}
	return as.database.ForEach(bannedAddressBucket.Path(), func(_ []byte, value []byte) (bool, error) {
		address, err := as.deserializeAddress(value)
		if err != nil {
			return false, err
		}
		as.bannedAddresses[netAddressKey(address.netAddress).address] = address
		return true, nil
	})
}

func (as *addressStore) add(key addressKey, address *address) error {
	if _, ok := as.notBannedAddresses[key]; ok {
		return nil
	}
	as.notBannedAddresses[key] = address
	return as.persist(notBannedAddressBucket.Key(as.serializeAddressKey(key)), address)
}

// update replaces the entry of an existing address.
func (as *addressStore) update(key addressKey, address *address) error {
	if _, ok := as.notBannedAddresses[key]; !ok {
		return errors.Errorf("address %s is not in the store", address.netAddress)
	}
	as.notBannedAddresses[key] = address
	return as.persist(notBannedAddressBucket.Key(as.serializeAddressKey(key)), address)
}

func (as *addressStore) remove(key addressKey) error {
	delete(as.notBannedAddresses, key)
	if as.database == nil {
		return nil
	}
	return as.database.Delete(notBannedAddressBucket.Key(as.serializeAddressKey(key)))
}

func (as *addressStore) getNotBanned(key addressKey) (*address, bool) {
	address, ok := as.notBannedAddresses[key]
	return address, ok
}

func (as *addressStore) isNotBanned(key addressKey) bool {
	_, ok := as.notBannedAddresses[key]
	return ok
}

func (as *addressStore) notBannedCount() int {
	return len(as.notBannedAddresses)
}

func (as *addressStore) getAllNotBanned() []*address {
	addresses := make([]*address, 0, len(as.notBannedAddresses))
	for _, address := range as.notBannedAddresses {
		addresses = append(addresses, address)
	}
	return addresses
}

func (as *addressStore) getAllNotBannedNetAddresses() []*appmessage.NetAddress {
	addresses := make([]*appmessage.NetAddress, 0, len(as.notBannedAddresses))
	for _, address := range as.notBannedAddresses {
		addresses = append(addresses, address.netAddress)
	}
	return addresses
}

func (as *addressStore) addBanned(key addressKey, address *address) error {
	if _, ok := as.bannedAddresses[key.address]; ok {
		return nil
	}
	as.bannedAddresses[key.address] = address
	return as.persist(bannedAddressBucket.Key(key.address[:]), address)
}

func (as *addressStore) removeBanned(key addressKey) error {
	delete(as.bannedAddresses, key.address)
	if as.database == nil {
		return nil
	}
	return as.database.Delete(bannedAddressBucket.Key(key.address[:]))
}

func (as *addressStore) getAllBannedNetAddresses() []*appmessage.NetAddress {
	bannedAddresses := make([]*appmessage.NetAddress, 0, len(as.bannedAddresses))
	for _, bannedAddress := range as.bannedAddresses {
		bannedAddresses = append(bannedAddresses, bannedAddress.netAddress)
	}
	return bannedAddresses
}

func (as *addressStore) isBanned(key addressKey) bool {
	_, ok := as.bannedAddresses[key.address]
	return ok
}

func (as *addressStore) getBanned(key addressKey) (*address, bool) {
	bannedAddress, ok := as.bannedAddresses[key.address]
	return bannedAddress, ok
}

func (as *addressStore) persist(databaseKey []byte, address *address) error {
	if as.database == nil {
		return nil
	}
	serializedAddress, err := as.serializeAddress(address)
	if err != nil {
		return err
	}
	return as.database.Put(databaseKey, serializedAddress)
}

func (as *addressStore) serializeAddressKey(key addressKey) []byte {
	serializedSize := net.IPv6len + 2 // ipv6 + port
	serializedKey := make([]byte, serializedSize)

	copy(serializedKey[:], key.address[:])
	binary.LittleEndian.PutUint16(serializedKey[net.IPv6len:], key.port)

	return serializedKey
}

func (as *addressStore) deserializeAddressKey(serializedKey []byte) addressKey {
	var ip ipv6
	copy(ip[:], serializedKey[:])

	port := binary.LittleEndian.Uint16(serializedKey[net.IPv6len:])

	return addressKey{
		port:    port,
		address: ip,
	}
}

func (as *addressStore) serializeAddress(address *address) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, serializedAddressLength))
	var ip ipv6
	copy(ip[:], address.netAddress.IP.To16())
	buf.Write(ip[:])

	err := binaryserializer.PutUint16(buf, binary.LittleEndian, address.netAddress.Port)
	if err != nil {
		return nil, err
	}
	err = binaryserializer.PutUint64(buf, binary.LittleEndian, uint64(address.netAddress.Services))
	if err != nil {
		return nil, err
	}
	err = binaryserializer.PutUint64(buf, binary.LittleEndian, uint64(address.lastSeen.Unix()))
	if err != nil {
		return nil, err
	}
	err = binaryserializer.PutUint64(buf, binary.LittleEndian, address.connectionFailedCount)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (as *addressStore) deserializeAddress(serializedAddress []byte) (*address, error) {
	if len(serializedAddress) != serializedAddressLength {
		return nil, errors.Errorf("serialized address has length %d, want %d",
			len(serializedAddress), serializedAddressLength)
	}
	ip := make(net.IP, net.IPv6len)
	copy(ip, serializedAddress[:net.IPv6len])

	r := bytes.NewReader(serializedAddress[net.IPv6len:])
	port, err := binaryserializer.Uint16(r, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	services, err := binaryserializer.Uint64(r, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	lastSeen, err := binaryserializer.Uint64(r, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	connectionFailedCount, err := binaryserializer.Uint64(r, binary.LittleEndian)
	if err != nil {
		return nil, err
	}

	return &address{
		netAddress:            appmessage.NewNetAddressIPPort(ip, port, appmessage.ServiceFlag(services)),
		lastSeen:              time.Unix(int64(lastSeen), 0),
		connectionFailedCount: connectionFailedCount,
	}, nil
}
