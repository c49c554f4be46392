package core

import (
	"io"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/lock"
	"github.com/agubarev/orgkeeper/pkg/user"
	"go.uber.org/zap"
)

// ForTesting returns a fully initialized core over a quiet badger
// database inside dir, with a local locker and no organization cache
func ForTesting(dir string) (*Core, error) {
	//---------------------------------------------------------------------------
	// initializing storage
	//---------------------------------------------------------------------------
	db, err := database.BadgerForTesting(dir)
	if err != nil {
		return nil, err
	}

	s, err := badgerStores(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	//---------------------------------------------------------------------------
	// initializing core
	//---------------------------------------------------------------------------
	c := &Core{closers: []io.Closer{db}}

	if err = c.SetLogger(zap.NewNop()); err != nil {
		return nil, err
	}

	if err = c.assemble(s, lock.NewLocal(), user.DefaultPolicy(), 0); err != nil {
		_ = c.Shutdown()
		return nil, err
	}

	return c, nil
}
