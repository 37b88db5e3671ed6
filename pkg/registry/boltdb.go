package registry

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/avery/pkg/metrics"
	"github.com/cuemby/avery/pkg/types"
)

var (
	bucketFunctions     = []byte("functions")
	bucketFunctionIndex = []byte("function_index") // "name\x00version" -> function id
	bucketAttachments   = []byte("attachments")
)

// BoltStore implements Store using a single embedded BoltDB file, the
// same pattern as the teacher's cluster store: one JSON record per key,
// a secondary index bucket for uniqueness, ForEach-based scans filtered
// in Go for everything list-shaped.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the registry database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "avery-registry.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketFunctions, bucketFunctionIndex, bucketAttachments} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	var count int
	if err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFunctions).ForEach(func(_, _ []byte) error {
			count++
			return nil
		})
	}); err != nil {
		db.Close()
		return nil, err
	}
	metrics.FunctionsTotal.Set(float64(count))

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func indexKey(name, version string) []byte {
	return []byte(name + "\x00" + version)
}

// Insert implements Store.
func (s *BoltStore) Insert(fn *types.Function) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RegistryOpDuration, "insert")

	id := uuid.NewString()
	now := time.Now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		idxB := tx.Bucket(bucketFunctionIndex)
		key := indexKey(fn.Name, fn.Version)
		if idxB.Get(key) != nil {
			return &VersionExistsError{Name: fn.Name, Version: fn.Version}
		}

		attB := tx.Bucket(bucketAttachments)
		referenced := make([]string, 0, len(fn.Attachments)+1)
		if fn.CodeID != "" {
			referenced = append(referenced, fn.CodeID)
		}
		referenced = append(referenced, fn.Attachments...)
		for _, aid := range referenced {
			if attB.Get([]byte(aid)) == nil {
				return &UnknownAttachmentError{ID: aid}
			}
		}

		stored := *fn
		stored.ID = id
		stored.CreatedAt = now
		data, err := json.Marshal(&stored)
		if err != nil {
			return err
		}

		fb := tx.Bucket(bucketFunctions)
		if err := fb.Put([]byte(id), data); err != nil {
			return err
		}
		if err := idxB.Put(key, []byte(id)); err != nil {
			return err
		}

		for _, aid := range referenced {
			var att types.Attachment
			if err := json.Unmarshal(attB.Get([]byte(aid)), &att); err != nil {
				return err
			}
			att.FunctionIDs = append(att.FunctionIDs, id)
			data, err := json.Marshal(&att)
			if err != nil {
				return err
			}
			if err := attB.Put([]byte(aid), data); err != nil {
				return err
			}
		}

		*fn = stored
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.FunctionsTotal.Inc()
	return id, nil
}

// InsertAttachment implements Store.
func (s *BoltStore) InsertAttachment(att *types.Attachment) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RegistryOpDuration, "insert_attachment")

	id := uuid.NewString()
	err := s.db.Update(func(tx *bolt.Tx) error {
		stored := *att
		stored.ID = id
		stored.FunctionIDs = nil
		data, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketAttachments).Put([]byte(id), data); err != nil {
			return err
		}
		*att = stored
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetAttachment implements Store.
func (s *BoltStore) GetAttachment(id string) (*types.Attachment, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RegistryOpDuration, "get_attachment")

	var att types.Attachment
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAttachments).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &att)
	})
	if err != nil {
		return nil, err
	}
	return &att, nil
}

func (s *BoltStore) allFunctions(tx *bolt.Tx) ([]*types.Function, error) {
	var fns []*types.Function
	err := tx.Bucket(bucketFunctions).ForEach(func(_, v []byte) error {
		var fn types.Function
		if err := json.Unmarshal(v, &fn); err != nil {
			return err
		}
		fns = append(fns, &fn)
		return nil
	})
	return fns, err
}

// Get implements Store: among all versions of name, discard those that
// do not satisfy versionReq and return the greatest remaining version.
func (s *BoltStore) Get(name, versionReq string) (*types.Function, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RegistryOpDuration, "get")

	filters := types.Filters{Name: name, VersionRequirement: versionReq}
	matches, err := s.filtered(filters)
	if err != nil {
		return nil, err
	}

	var exact []*types.Function
	for _, fn := range matches {
		if fn.Name == name {
			exact = append(exact, fn)
		}
	}
	if len(exact) == 0 {
		return nil, ErrNotFound
	}

	sortFunctions(exact, types.OrderByNameVersion, false)
	return exact[0], nil
}

// GetByID implements Store.
func (s *BoltStore) GetByID(id string) (*types.Function, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RegistryOpDuration, "get_by_id")

	var fn types.Function
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFunctions).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &fn)
	})
	if err != nil {
		return nil, err
	}
	return &fn, nil
}

// List implements Store.
func (s *BoltStore) List(filters types.Filters, ordering types.Ordering) ([]*types.Function, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RegistryOpDuration, "list")

	matches, err := s.filtered(filters)
	if err != nil {
		return nil, err
	}

	sortFunctions(matches, ordering.Key, ordering.Reverse)

	limit := ordering.Limit
	if limit == 0 {
		limit = types.DefaultListLimit
	}
	offset := int(ordering.Offset)
	if offset > len(matches) {
		offset = len(matches)
	}
	matches = matches[offset:]
	if int(limit) < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *BoltStore) filtered(filters types.Filters) ([]*types.Function, error) {
	var all []*types.Function
	err := s.db.View(func(tx *bolt.Tx) error {
		fns, err := s.allFunctions(tx)
		all = fns
		return err
	})
	if err != nil {
		return nil, err
	}

	var req *semver.Constraints
	if filters.VersionRequirement != "" {
		req, err = semver.NewConstraint(filters.VersionRequirement)
		if err != nil {
			return nil, fmt.Errorf("invalid version requirement %q: %w", filters.VersionRequirement, err)
		}
	}

	out := all[:0:0]
	for _, fn := range all {
		if filters.Name != "" && !strings.Contains(fn.Name, filters.Name) {
			continue
		}
		if req != nil {
			v, err := semver.NewVersion(fn.Version)
			if err != nil || !req.Check(v) {
				continue
			}
		}
		if !metadataMatches(filters.Metadata, fn.Metadata) {
			continue
		}
		out = append(out, fn)
	}
	return out, nil
}

func metadataMatches(want, have map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// sortFunctions applies the ordering key, then the CreatedAt-desc,
// ID-asc tiebreak (spec §4.4 algorithm, §9 open question).
func sortFunctions(fns []*types.Function, key types.OrderingKey, reverse bool) {
	sort.SliceStable(fns, func(i, j int) bool {
		a, b := fns[i], fns[j]
		less := lessByKey(a, b, key)
		if reverse {
			less = !less
		}
		return less
	})
}

func lessByKey(a, b *types.Function, key types.OrderingKey) bool {
	switch key {
	case types.OrderByNameVersion:
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		// version descending within a name
		va, errA := semver.NewVersion(a.Version)
		vb, errB := semver.NewVersion(b.Version)
		if errA == nil && errB == nil && !va.Equal(vb) {
			return va.GreaterThan(vb)
		}
		return tiebreak(a, b)
	default:
		// Subject/ExpiresAt order the auth sub-surface (§6), which has
		// no Function-shaped representation here; fall back to the
		// stable tiebreak so List never panics on an unsupported key.
		return tiebreak(a, b)
	}
}

func tiebreak(a, b *types.Function) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
