// Package session persists users and login sessions in an embedded badger
// database and issues the signed tokens that identify a session.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"
)

const (
	userPrefix    = "user:"
	sessionPrefix = "session:"
)

var (
	// ErrUserNotFound is returned when no user has the given email.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email already in the store.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNoSession is returned for a missing, expired, or revoked session.
	ErrNoSession = errors.New("no active session")
)

// Record is the persisted state of one login session.
type Record struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store keeps users keyed by email and sessions keyed by id.
type Store struct {
	db *badger.DB
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenStore opens the store at path. An empty path or ":memory:" keeps
// everything in memory.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	var opts badger.Options
	if path == "" || path == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create session directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{logger: logger.With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NormalizeEmail is the canonical form used as the user key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userKey(email string) []byte {
	return []byte(userPrefix + NormalizeEmail(email))
}

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

// Seed inserts every user whose email is not yet stored. It returns the
// number of users added.
func (s *Store) Seed(users []domain.User) (int, error) {
	added := 0
	for _, u := range users {
		if err := u.Validate(); err != nil {
			return added, fmt.Errorf("seed: %w", err)
		}
		err := s.CreateUser(u)
		if errors.Is(err, ErrEmailTaken) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// LoadSeedFile reads a YAML list of users.
func LoadSeedFile(path string) ([]domain.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var users []domain.User
	if err := yaml.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	for i := range users {
		u := &users[i]
		if len(u.AllowedRegions) == 0 {
			u.AllowedRegions = domain.RegionsForRole(u.Role, u.PlaceOfInterest.Region)
		}
	}
	return users, nil
}

// CreateUser stores u, failing with ErrEmailTaken if its email exists. The
// check and the write happen in one transaction.
func (s *Store) CreateUser(u domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		key := userKey(u.Email)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return ErrEmailTaken
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrEmailTaken
	}
	return err
}

// UserByEmail looks up a user. Matching ignores case and surrounding space.
func (s *Store) UserByEmail(email string) (domain.User, error) {
	var u domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &u)
		})
	})
	return u, err
}

// Users lists every stored user ordered by email.
func (s *Store) Users() ([]domain.User, error) {
	var out []domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var u domain.User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &u)
			}); err != nil {
				return err
			}
			out = append(out, u)
		}
		return nil
	})
	return out, err
}

// PutSession stores rec until its expiry.
func (s *Store) PutSession(rec Record, now time.Time) error {
	ttl := rec.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", rec.ID)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(sessionKey(rec.ID), data).WithTTL(ttl))
	})
}

// Session returns the stored record for id, or ErrNoSession.
func (s *Store) Session(id string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSession
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// DeleteSession removes id. Deleting a missing session is not an error.
func (s *Store) DeleteSession(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}

// Sessions lists every stored session record.
func (s *Store) Sessions() ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}
