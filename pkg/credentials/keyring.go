package credentials

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// KeyringStore persists credentials in the OS-native keyring, namespaced
// by a service name so avery's entries never collide with another
// application's.
type KeyringStore struct {
	ring keyring.Keyring
}

func NewKeyringStore(serviceName string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{ServiceName: serviceName})
	if err != nil {
		return nil, fmt.Errorf("credentials: open OS keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

func (k *KeyringStore) Store(key, value string) error {
	return k.ring.Set(keyring.Item{Key: key, Data: []byte(value)})
}

func (k *KeyringStore) Retrieve(key string) (string, bool, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credentials: keyring retrieve %q: %w", key, err)
	}
	return string(item.Data), true, nil
}
