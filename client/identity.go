package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Identity is the locally persisted user identity. It survives restarts so
// that a reconnecting client keeps the same userId and its own echoed
// operations stay recognizable.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

var (
	identityBucket = []byte("identity")
	identityKey    = []byte("user")
)

// LoadOrCreateIdentity reads the identity from the bolt database at path,
// creating it with a fresh userId on first run. A non-empty displayName
// overrides the stored one and is written back.
func LoadOrCreateIdentity(path, displayName string) (Identity, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return Identity{}, fmt.Errorf("opening identity store %s: %w", path, err)
	}
	defer db.Close()

	var id Identity
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(identityBucket)
		if err != nil {
			return err
		}
		if raw := b.Get(identityKey); raw != nil {
			if err := json.Unmarshal(raw, &id); err == nil && id.UserID != "" {
				if displayName == "" || displayName == id.DisplayName {
					return nil
				}
				id.DisplayName = displayName
				raw, err := json.Marshal(id)
				if err != nil {
					return err
				}
				return b.Put(identityKey, raw)
			}
			// Unreadable record: fall through and replace it.
		}
		if displayName == "" {
			displayName = "anonymous"
		}
		id = Identity{UserID: "user-" + uuid.NewString(), DisplayName: displayName}
		raw, err := json.Marshal(id)
		if err != nil {
			return err
		}
		return b.Put(identityKey, raw)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("loading identity: %w", err)
	}
	return id, nil
}
