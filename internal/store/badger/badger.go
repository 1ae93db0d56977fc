// Package badger implements internal/store.Store over an embedded
// github.com/dgraph-io/badger/v4 database. Hash and sorted-set
// semantics are layered on top of badger's ordered-key iteration:
// hash fields and zset members are encoded as sub-keys under a
// fixed-width key fingerprint (github.com/cespare/xxhash/v2), and
// zset scores are stored as an order-preserving big-endian suffix so
// ZRangeWithScores can be served by a plain prefix scan.
package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/cespare/xxhash/v2"
	"github.com/marmos91/graymamba/internal/store"
)

const (
	prefixString = "s:"
	prefixHash   = "h:"
	prefixZSet   = "z:"
	prefixAuth   = "a:"
)

// Store is a badger-backed implementation of store.Store.
type Store struct {
	db *badgerdb.DB
}

// Open opens (creating if absent) a badger database rooted at path.
func Open(path string) (*Store, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func fingerprint(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

func hashKey(key, field string) []byte {
	return []byte(prefixHash + fingerprint(key) + ":" + field)
}

func hashPrefix(key string) []byte {
	return []byte(prefixHash + fingerprint(key) + ":")
}

// scoreBytes encodes a float64 score so that byte-lexicographic order
// matches numeric order, including negative scores.
func scoreBytes(score float64) []byte {
	bits := math.Float64bits(score)
	if score >= 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func scoreFromBytes(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

func zMemberKey(key, member string) []byte {
	return []byte(prefixZSet + "m:" + fingerprint(key) + ":" + member)
}

func zScoreKey(key string, score float64, member string) []byte {
	return append([]byte(prefixZSet+"s:"+fingerprint(key)+":"), append(scoreBytes(score), []byte(":"+member)...)...)
}

func zScorePrefix(key string) []byte {
	return []byte(prefixZSet + "s:" + fingerprint(key) + ":")
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	var val string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(prefixString + key))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return store.ErrKeyNotFound
			}
			return store.ErrConnectionError
		}
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	return val, err
}

func (s *Store) Set(_ context.Context, key, value string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(prefixString+key), []byte(value))
	})
	if err != nil {
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(prefixString + key))
	})
	if err != nil {
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) HGet(_ context.Context, key, field string) (string, error) {
	var val string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(hashKey(key, field))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return store.ErrKeyNotFound
			}
			return store.ErrConnectionError
		}
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	return val, err
}

func (s *Store) HSet(_ context.Context, key, field, value string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(hashKey(key, field), []byte(value))
	})
	if err != nil {
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) HDel(_ context.Context, key, field string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(hashKey(key, field))
	})
	if err != nil {
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	result := make(map[string]string)
	prefix := hashPrefix(key)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			field := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			err := it.Item().Value(func(v []byte) error {
				result[field] = string(v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.ErrOperationFailed
	}
	return result, nil
}

func (s *Store) HSetMultiple(_ context.Context, key string, fields map[string]string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for field, value := range fields {
			if err := txn.Set(hashKey(key, field), []byte(value)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) ZAdd(_ context.Context, key, member string, score float64) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		// remove any existing entry for this member at its old score first.
		if item, err := txn.Get(zMemberKey(key, member)); err == nil {
			var old float64
			_ = item.Value(func(v []byte) error {
				old = scoreFromBytes(v)
				return nil
			})
			_ = txn.Delete(zScoreKey(key, old, member))
		}
		if err := txn.Set(zMemberKey(key, member), scoreBytes(score)); err != nil {
			return err
		}
		return txn.Set(zScoreKey(key, score, member), nil)
	})
	if err != nil {
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) ZRem(_ context.Context, key, member string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(zMemberKey(key, member))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		var score float64
		_ = item.Value(func(v []byte) error {
			score = scoreFromBytes(v)
			return nil
		})
		if err := txn.Delete(zMemberKey(key, member)); err != nil {
			return err
		}
		return txn.Delete(zScoreKey(key, score, member))
	})
	if err != nil {
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) ZRangeWithScores(_ context.Context, key string, start, stop int64) ([]store.ScoredMember, error) {
	var all []store.ScoredMember
	prefix := zScorePrefix(key)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := it.Item().Key()[len(prefix):]
			if len(rest) < 9 {
				continue
			}
			score := scoreFromBytes(rest[:8])
			member := string(rest[9:])
			all = append(all, store.ScoredMember{Member: member, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, store.ErrOperationFailed
	}
	return sliceRange(all, start, stop), nil
}

func sliceRange(all []store.ScoredMember, start, stop int64) []store.ScoredMember {
	n := int64(len(all))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil
	}
	return all[start : stop+1]
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	all, err := s.ZRangeWithScores(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, m := range all {
		if m.Score >= min && m.Score <= max {
			result = append(result, m.Member)
		}
	}
	return result, nil
}

func (s *Store) ZScanMatch(ctx context.Context, key, pattern string) ([]string, error) {
	all, err := s.ZRangeWithScores(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, m := range all {
		ok, _ := matchGlob(pattern, m.Member)
		if ok {
			result = append(result, m.Member)
		}
	}
	return result, nil
}

func (s *Store) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	var score float64
	found := false
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(zMemberKey(key, member))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			score = scoreFromBytes(v)
			return nil
		})
	})
	if err != nil {
		return 0, false, store.ErrOperationFailed
	}
	return score, found, nil
}

func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	var result int64
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		k := []byte(prefixString + key)
		var current int64
		item, err := txn.Get(k)
		if err == nil {
			_ = item.Value(func(v []byte) error {
				fmt.Sscanf(string(v), "%d", &current)
				return nil
			})
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		current++
		result = current
		return txn.Set(k, []byte(fmt.Sprintf("%d", current)))
	})
	if err != nil {
		return 0, store.ErrOperationFailed
	}
	return result, nil
}

func (s *Store) Rename(_ context.Context, oldKey, newKey string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		ok := []byte(prefixString + oldKey)
		item, err := txn.Get(ok)
		if err != nil {
			return err
		}
		var v []byte
		if err := item.Value(func(val []byte) error {
			v = append([]byte{}, val...)
			return nil
		}); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixString+newKey), v); err != nil {
			return err
		}
		return txn.Delete(ok)
	})
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return store.ErrKeyNotFound
		}
		return store.ErrOperationFailed
	}
	return nil
}

func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	var result []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixString)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), prefixString)
			if ok, _ := matchGlob(pattern, key); ok {
				result = append(result, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.ErrOperationFailed
	}
	sort.Strings(result)
	return result, nil
}

func (s *Store) AuthenticateUser(_ context.Context, key string) (store.AuthClass, error) {
	var val string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(prefixAuth + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return store.AuthNone, nil
		}
		return store.AuthNone, store.ErrConnectionError
	}
	switch val {
	case "special":
		return store.AuthSpecial, nil
	case "usual":
		return store.AuthUsual, nil
	default:
		return store.AuthNone, nil
	}
}

// SetCredential is a badger-specific helper (not part of store.Store)
// for seeding the credential table directly. No configuration option
// populates the table.
func (s *Store) SetCredential(key string, class store.AuthClass) error {
	val := "none"
	switch class {
	case store.AuthUsual:
		val = "usual"
	case store.AuthSpecial:
		val = "special"
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(prefixAuth+key), []byte(val))
	})
}

// matchGlob implements the small subset of shell glob matching
// ("*" and "?") that Redis's KEYS/ZSCAN pattern argument supports.
func matchGlob(pattern, s string) (bool, error) {
	return globMatch(pattern, s), nil
}

func globMatch(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	return globMatchRec(pattern, s)
}

func globMatchRec(p, s string) bool {
	if p == "" {
		return s == ""
	}
	switch p[0] {
	case '*':
		if globMatchRec(p[1:], s) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if globMatchRec(p[1:], s[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if s == "" {
			return false
		}
		return globMatchRec(p[1:], s[1:])
	default:
		if s == "" || s[0] != p[0] {
			return false
		}
		return globMatchRec(p[1:], s[1:])
	}
}
