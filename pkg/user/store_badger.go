package user

import (
	"bytes"
	"context"
	"sort"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/r3labs/diff"
)

// key layout:
//   user:id:<id>                   -> user
//   user:username:<username>       -> id
//   user:email:<email>             -> id
//   user:organization:<org>:<id>   -> nothing
var (
	prefixID           = []byte("user:id:")
	prefixUsername     = []byte("user:username:")
	prefixEmail        = []byte("user:email:")
	prefixOrganization = []byte("user:organization:")
)

func key(prefix []byte, parts ...string) []byte {
	k := append([]byte{}, prefix...)
	for i, p := range parts {
		if i > 0 {
			k = append(k, ':')
		}

		k = append(k, p...)
	}

	return k
}

func keyID(id uuid.UUID) []byte { return key(prefixID, id.String()) }

func keyUsername(username string) []byte { return key(prefixUsername, username) }

func keyEmail(email string) []byte { return key(prefixEmail, email) }

func keyOrganizationPrefix(org uuid.UUID) []byte {
	return append(key(prefixOrganization, org.String()), ':')
}

func keyOrganization(org, id uuid.UUID) []byte {
	return key(prefixOrganization, org.String(), id.String())
}

// BadgerStore keeps users in badger
type BadgerStore struct {
	db *database.Badger
}

// NewBadgerStore returns a user store backed by badger
func NewBadgerStore(db *database.Badger) (Store, error) {
	if db == nil {
		return nil, database.ErrNilDatabase
	}

	return &BadgerStore{db: db}, nil
}

//---------------------------------------------------------------------------
// unexported utility functions
//---------------------------------------------------------------------------

func (s *BadgerStore) get(txn *badger.Txn, id uuid.UUID) (u User, err error) {
	if err = database.GetJSON(txn, keyID(id), &u); err != nil {
		if err == badger.ErrKeyNotFound {
			return u, ErrUserNotFound
		}

		return u, err
	}

	return u, nil
}

func (s *BadgerStore) getByIndex(txn *badger.Txn, k []byte) (u User, err error) {
	val, err := database.GetValue(txn, k)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return u, ErrUserNotFound
		}

		return u, err
	}

	id, err := uuid.ParseBytes(val)
	if err != nil {
		return u, errors.Wrapf(err, "corrupted user index %s", k)
	}

	return s.get(txn, id)
}

// claim takes an index key for the user unless someone else holds it
func (s *BadgerStore) claim(txn *badger.Txn, k []byte, id uuid.UUID, taken error) error {
	val, err := database.GetValue(txn, k)
	switch {
	case err == badger.ErrKeyNotFound:
		return database.Set(txn, k, []byte(id.String()))
	case err != nil:
		return err
	case !bytes.Equal(val, []byte(id.String())):
		return taken
	default:
		return nil
	}
}

func (s *BadgerStore) indexes(txn *badger.Txn, u User) error {
	if err := s.claim(txn, keyUsername(u.Username), u.ID, ErrUsernameTaken); err != nil {
		return err
	}

	if u.Email != "" {
		if err := s.claim(txn, keyEmail(u.Email), u.ID, ErrEmailTaken); err != nil {
			return err
		}
	}

	if u.OrganizationID != uuid.Nil {
		if err := database.Set(txn, keyOrganization(u.OrganizationID, u.ID), nil); err != nil {
			return err
		}
	}

	return nil
}

func (s *BadgerStore) dropIndexes(txn *badger.Txn, u User) error {
	if err := database.Delete(txn, keyUsername(u.Username)); err != nil {
		return err
	}

	if u.Email != "" {
		if err := database.Delete(txn, keyEmail(u.Email)); err != nil {
			return err
		}
	}

	if u.OrganizationID != uuid.Nil {
		if err := database.Delete(txn, keyOrganization(u.OrganizationID, u.ID)); err != nil {
			return err
		}
	}

	return nil
}

//---------------------------------------------------------------------------
// store contract
//---------------------------------------------------------------------------

func (s *BadgerStore) CreateUser(ctx context.Context, u User) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		if _, err := s.get(txn, u.ID); err == nil {
			return ErrUserExists
		} else if err != ErrUserNotFound {
			return err
		}

		if err := s.indexes(txn, u); err != nil {
			return err
		}

		return database.SetJSON(txn, keyID(u.ID), u)
	})
}

func (s *BadgerStore) FetchUserByID(ctx context.Context, id uuid.UUID) (u User, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		u, err = s.get(txn, id)
		return err
	})

	return u, err
}

func (s *BadgerStore) FetchUserByUsername(ctx context.Context, username string) (u User, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		u, err = s.getByIndex(txn, keyUsername(username))
		return err
	})

	return u, err
}

func (s *BadgerStore) FetchUserByEmail(ctx context.Context, email string) (u User, err error) {
	if email == "" {
		return u, ErrUserNotFound
	}

	err = s.db.View(ctx, func(txn *badger.Txn) error {
		u, err = s.getByIndex(txn, keyEmail(email))
		return err
	})

	return u, err
}

func (s *BadgerStore) FetchUsersByOrganization(ctx context.Context, orgID uuid.UUID) (us []User, err error) {
	us = make([]User, 0)
	prefix := keyOrganizationPrefix(orgID)

	err = s.db.View(ctx, func(txn *badger.Txn) error {
		keys, err := database.Keys(txn, prefix)
		if err != nil {
			return err
		}

		for _, k := range keys {
			id, err := uuid.ParseBytes(bytes.TrimPrefix(k, prefix))
			if err != nil {
				return errors.Wrapf(err, "corrupted organization index key %s", k)
			}

			u, err := s.get(txn, id)
			if err != nil {
				return err
			}

			us = append(us, u)
		}

		return nil
	})

	return us, err
}

// SearchUsers scans every user; good enough for an embedded store
func (s *BadgerStore) SearchUsers(ctx context.Context, query string, limit int) (us []User, err error) {
	us = make([]User, 0)

	err = s.db.View(ctx, func(txn *badger.Txn) error {
		return database.Values(txn, prefixID, func(val []byte) error {
			var u User
			if err := database.DecodeJSON(val, &u); err != nil {
				return err
			}

			if u.matches(query) {
				us = append(us, u)
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(us, func(i, j int) bool { return us[i].Username < us[j].Username })

	if limit > 0 && len(us) > limit {
		us = us[:limit]
	}

	return us, nil
}

// UpdateUser moves whichever indexes changed and stores the new state
func (s *BadgerStore) UpdateUser(ctx context.Context, before, after User, _ diff.Changelog) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		if _, err := s.get(txn, after.ID); err != nil {
			return err
		}

		if before.Username != after.Username {
			if err := s.claim(txn, keyUsername(after.Username), after.ID, ErrUsernameTaken); err != nil {
				return err
			}

			if err := database.Delete(txn, keyUsername(before.Username)); err != nil {
				return err
			}
		}

		if before.Email != after.Email {
			if after.Email != "" {
				if err := s.claim(txn, keyEmail(after.Email), after.ID, ErrEmailTaken); err != nil {
					return err
				}
			}

			if before.Email != "" {
				if err := database.Delete(txn, keyEmail(before.Email)); err != nil {
					return err
				}
			}
		}

		if before.OrganizationID != after.OrganizationID {
			if before.OrganizationID != uuid.Nil {
				if err := database.Delete(txn, keyOrganization(before.OrganizationID, after.ID)); err != nil {
					return err
				}
			}

			if after.OrganizationID != uuid.Nil {
				if err := database.Set(txn, keyOrganization(after.OrganizationID, after.ID), nil); err != nil {
					return err
				}
			}
		}

		return database.SetJSON(txn, keyID(after.ID), after)
	})
}

func (s *BadgerStore) DeleteUserByID(ctx context.Context, id uuid.UUID) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		u, err := s.get(txn, id)
		if err != nil {
			return err
		}

		if err = s.dropIndexes(txn, u); err != nil {
			return err
		}

		return database.Delete(txn, keyID(id))
	})
}
