package group

import (
	"bytes"
	"context"
	"sort"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// key layout:
//   group:id:<id>                      -> group
//   group:name:<name>                  -> id
//   group:member:<group id>:<user id>  -> nothing
//   group:membership:<user id>:<group> -> nothing
var (
	prefixID         = []byte("group:id:")
	prefixName       = []byte("group:name:")
	prefixMember     = []byte("group:member:")
	prefixMembership = []byte("group:membership:")
)

func join(prefix []byte, parts ...string) []byte {
	k := append([]byte{}, prefix...)
	for _, p := range parts {
		k = append(k, p...)
		k = append(k, ':')
	}

	// dropping the trailing separator
	return k[:len(k)-1]
}

func keyID(id uuid.UUID) []byte { return join(prefixID, id.String()) }

func keyName(name string) []byte { return join(prefixName, name) }

func keyMember(groupID, userID uuid.UUID) []byte {
	return join(prefixMember, groupID.String(), userID.String())
}

func keyMembership(userID, groupID uuid.UUID) []byte {
	return join(prefixMembership, userID.String(), groupID.String())
}

func keyMemberPrefix(groupID uuid.UUID) []byte {
	return append(join(prefixMember, groupID.String()), ':')
}

func keyMembershipPrefix(userID uuid.UUID) []byte {
	return append(join(prefixMembership, userID.String()), ':')
}

// idsUnder parses the trailing ids of every key under prefix
func idsUnder(txn *badger.Txn, prefix []byte) ([]uuid.UUID, error) {
	keys, err := database.Keys(txn, prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.ParseBytes(bytes.TrimPrefix(k, prefix))
		if err != nil {
			return nil, errors.Wrapf(err, "corrupted relation key %s", k)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// BadgerStore keeps groups in badger
type BadgerStore struct {
	db *database.Badger
}

// NewBadgerStore returns a group store backed by badger
func NewBadgerStore(db *database.Badger) (Store, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	return &BadgerStore{db: db}, nil
}

//---------------------------------------------------------------------------
// unexported utility functions
//---------------------------------------------------------------------------

func (s *BadgerStore) get(txn *badger.Txn, id uuid.UUID) (g Group, err error) {
	if err = database.GetJSON(txn, keyID(id), &g); err != nil {
		if err == badger.ErrKeyNotFound {
			return g, ErrGroupNotFound
		}

		return g, err
	}

	return g, nil
}

func (s *BadgerStore) idByName(txn *badger.Txn, name string) (id uuid.UUID, err error) {
	val, err := database.GetValue(txn, keyName(name))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return id, ErrGroupNotFound
		}

		return id, err
	}

	id, err = uuid.ParseBytes(val)
	if err != nil {
		return id, errors.Wrapf(err, "corrupted name index for %s", name)
	}

	return id, nil
}

func (s *BadgerStore) unlink(txn *badger.Txn, groupID, userID uuid.UUID) error {
	if err := database.Delete(txn, keyMember(groupID, userID)); err != nil {
		return err
	}

	return database.Delete(txn, keyMembership(userID, groupID))
}

//---------------------------------------------------------------------------
// store contract
//---------------------------------------------------------------------------

func (s *BadgerStore) CreateGroup(ctx context.Context, g Group) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		_, err := s.idByName(txn, g.Name)
		switch {
		case err == nil:
			return ErrDuplicateGroup
		case err != ErrGroupNotFound:
			return err
		}

		if err = database.SetJSON(txn, keyID(g.ID), g); err != nil {
			return err
		}

		return database.Set(txn, keyName(g.Name), []byte(g.ID.String()))
	})
}

func (s *BadgerStore) FetchGroupByID(ctx context.Context, id uuid.UUID) (g Group, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		g, err = s.get(txn, id)
		return err
	})

	return g, err
}

func (s *BadgerStore) FetchGroupByName(ctx context.Context, name string) (g Group, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		id, err := s.idByName(txn, name)
		if err != nil {
			return err
		}

		g, err = s.get(txn, id)

		return err
	})

	return g, err
}

func (s *BadgerStore) FetchGroupsByName(ctx context.Context, isPartial bool, name string) (gs []Group, err error) {
	gs = make([]Group, 0)

	if !isPartial {
		g, err := s.FetchGroupByName(ctx, name)
		if err != nil {
			if err == ErrGroupNotFound {
				return gs, nil
			}

			return nil, err
		}

		return append(gs, g), nil
	}

	prefix := append(append([]byte{}, prefixName...), name...)

	err = s.db.View(ctx, func(txn *badger.Txn) error {
		ids := make([]uuid.UUID, 0)

		err := database.Values(txn, prefix, func(val []byte) error {
			id, err := uuid.ParseBytes(val)
			if err != nil {
				return errors.Wrap(err, "corrupted name index")
			}

			ids = append(ids, id)

			return nil
		})

		if err != nil {
			return err
		}

		for _, id := range ids {
			g, err := s.get(txn, id)
			if err != nil {
				return err
			}

			gs = append(gs, g)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(gs, func(i, j int) bool { return gs[i].Name < gs[j].Name })

	return gs, nil
}

// DeleteByID removes the group along with all of its relations
func (s *BadgerStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		g, err := s.get(txn, id)
		if err != nil {
			return err
		}

		members, err := idsUnder(txn, keyMemberPrefix(id))
		if err != nil {
			return err
		}

		for _, userID := range members {
			if err = s.unlink(txn, id, userID); err != nil {
				return err
			}
		}

		if err = database.Delete(txn, keyName(g.Name)); err != nil {
			return err
		}

		return database.Delete(txn, keyID(id))
	})
}

func (s *BadgerStore) CreateRelation(ctx context.Context, groupID, userID uuid.UUID) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		if _, err := s.get(txn, groupID); err != nil {
			return err
		}

		if err := database.Set(txn, keyMember(groupID, userID), nil); err != nil {
			return err
		}

		return database.Set(txn, keyMembership(userID, groupID), nil)
	})
}

func (s *BadgerStore) HasRelation(ctx context.Context, groupID, userID uuid.UUID) (ok bool, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(keyMember(groupID, userID))
		switch {
		case err == nil:
			ok = true
			return nil
		case err == badger.ErrKeyNotFound:
			return nil
		default:
			return database.Unavailable(errors.Wrap(err, "failed to read group relation"))
		}
	})

	return ok, err
}

func (s *BadgerStore) FetchMemberIDs(ctx context.Context, groupID uuid.UUID) (ids []uuid.UUID, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		ids, err = idsUnder(txn, keyMemberPrefix(groupID))
		return err
	})

	return ids, err
}

func (s *BadgerStore) FetchGroupIDsByMember(ctx context.Context, userID uuid.UUID) (ids []uuid.UUID, err error) {
	err = s.db.View(ctx, func(txn *badger.Txn) error {
		ids, err = idsUnder(txn, keyMembershipPrefix(userID))
		return err
	})

	return ids, err
}

func (s *BadgerStore) DeleteRelation(ctx context.Context, groupID, userID uuid.UUID) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		return s.unlink(txn, groupID, userID)
	})
}

func (s *BadgerStore) DeleteRelationsByMember(ctx context.Context, userID uuid.UUID) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		groups, err := idsUnder(txn, keyMembershipPrefix(userID))
		if err != nil {
			return err
		}

		for _, groupID := range groups {
			if err = s.unlink(txn, groupID, userID); err != nil {
				return err
			}
		}

		return nil
	})
}
