package organization

import (
	"bytes"
	"context"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// key layout:
//   organization:id:<id>              -> organization
//   organization:name:<name>          -> id
//   organization:domain:<domain>:<id> -> nothing
var (
	prefixID     = []byte("organization:id:")
	prefixName   = []byte("organization:name:")
	prefixDomain = []byte("organization:domain:")
)

func keyID(id uuid.UUID) []byte {
	return append(append([]byte{}, prefixID...), id.String()...)
}

func keyName(name string) []byte {
	return append(append([]byte{}, prefixName...), nameKey(name)...)
}

func keyDomainPrefix(domain string) []byte {
	return append(append(append([]byte{}, prefixDomain...), domain...), ':')
}

func keyDomain(domain string, id uuid.UUID) []byte {
	return append(keyDomainPrefix(domain), id.String()...)
}

// BadgerStore keeps organizations in badger
type BadgerStore struct {
	db *database.Badger
}

// NewBadgerStore returns an organization store backed by badger
func NewBadgerStore(db *database.Badger) (Store, error) {
	if db == nil {
		return nil, database.ErrNilDatabase
	}

	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) get(txn *badger.Txn, id uuid.UUID) (o Organization, err error) {
	if err = database.GetJSON(txn, keyID(id), &o); err != nil {
		if err == badger.ErrKeyNotFound {
			return o, ErrOrganizationNotFound
		}

		return o, err
	}

	return o, nil
}

func (s *BadgerStore) exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case err == badger.ErrKeyNotFound:
		return false, nil
	default:
		return false, database.Unavailable(errors.Wrapf(err, "failed to read %s", key))
	}
}

func (s *BadgerStore) put(txn *badger.Txn, o Organization) error {
	return database.SetJSON(txn, keyID(o.ID), o)
}

// CreateOrganization stores a new organization along with its name and domain indexes
func (s *BadgerStore) CreateOrganization(ctx context.Context, o Organization) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		taken, err := s.exists(txn, keyName(o.Name))
		if err != nil {
			return err
		}

		if taken {
			return ErrDuplicateName
		}

		if err = s.put(txn, o); err != nil {
			return err
		}

		if err = database.Set(txn, keyName(o.Name), []byte(o.ID.String())); err != nil {
			return err
		}

		for _, d := range o.Domains {
			if err = database.Set(txn, keyDomain(d, o.ID), nil); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *BadgerStore) FetchOrganizationByID(ctx context.Context, id uuid.UUID) (o Organization, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		o, err = s.get(txn, id)
		return err
	})

	return o, err
}

func (s *BadgerStore) FetchOrganizationByName(ctx context.Context, name string) (o Organization, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		val, err := database.GetValue(txn, keyName(name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrOrganizationNotFound
			}

			return err
		}

		id, err := uuid.ParseBytes(val)
		if err != nil {
			return errors.Wrapf(err, "corrupted name index for %s", name)
		}

		o, err = s.get(txn, id)

		return err
	})

	return o, err
}

// FetchOrganizationsByDomain returns every organization claiming the domain
func (s *BadgerStore) FetchOrganizationsByDomain(ctx context.Context, domain string) (orgs []Organization, err error) {
	orgs = make([]Organization, 0)
	prefix := keyDomainPrefix(domain)

	err = s.db.View(ctx, func(txn *badger.Txn) error {
		keys, err := database.Keys(txn, prefix)
		if err != nil {
			return err
		}

		for _, k := range keys {
			id, err := uuid.ParseBytes(bytes.TrimPrefix(k, prefix))
			if err != nil {
				return errors.Wrapf(err, "corrupted domain index key %s", k)
			}

			o, err := s.get(txn, id)
			if err != nil {
				return err
			}

			orgs = append(orgs, o)
		}

		return nil
	})

	return orgs, err
}

func (s *BadgerStore) FetchAllOrganizations(ctx context.Context) (orgs []Organization, err error) {
	orgs = make([]Organization, 0)

	err = s.db.View(ctx, func(txn *badger.Txn) error {
		return database.Values(txn, prefixID, func(val []byte) error {
			var o Organization
			if err := database.DecodeJSON(val, &o); err != nil {
				return err
			}

			orgs = append(orgs, o)

			return nil
		})
	})

	return orgs, err
}

// LockOrganization reads and rewrites the organization record, so any
// other transaction doing the same for this organization conflicts
// with this one at commit
func (s *BadgerStore) LockOrganization(ctx context.Context, id uuid.UUID) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		val, err := database.GetValue(txn, keyID(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrOrganizationNotFound
			}

			return err
		}

		return database.Set(txn, keyID(id), val)
	})
}

// UpdateOrganization stores the new state, moving the indexes that changed
func (s *BadgerStore) UpdateOrganization(ctx context.Context, before, after Organization) error {
	if before.ID != after.ID {
		return ErrOrganizationIDChanged
	}

	return s.db.Update(ctx, func(txn *badger.Txn) error {
		if _, err := s.get(txn, after.ID); err != nil {
			return err
		}

		// moving the name index
		if nameKey(before.Name) != nameKey(after.Name) {
			taken, err := s.exists(txn, keyName(after.Name))
			if err != nil {
				return err
			}

			if taken {
				return ErrDuplicateName
			}

			if err = database.Delete(txn, keyName(before.Name)); err != nil {
				return err
			}

			if err = database.Set(txn, keyName(after.Name), []byte(after.ID.String())); err != nil {
				return err
			}
		}

		// moving domain indexes
		removed, added := domainChanges(before.Domains, after.Domains)
		for _, d := range removed {
			if err := database.Delete(txn, keyDomain(d, after.ID)); err != nil {
				return err
			}
		}

		for _, d := range added {
			if err := database.Set(txn, keyDomain(d, after.ID), nil); err != nil {
				return err
			}
		}

		return s.put(txn, after)
	})
}

func (s *BadgerStore) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		o, err := s.get(txn, id)
		if err != nil {
			return err
		}

		for _, d := range o.Domains {
			if err = database.Delete(txn, keyDomain(d, id)); err != nil {
				return err
			}
		}

		if err = database.Delete(txn, keyName(o.Name)); err != nil {
			return err
		}

		return database.Delete(txn, keyID(id))
	})
}
