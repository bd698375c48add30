package core

import (
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// leveldb allows a single process at a time, others wait for it with these settings
var (
	openRetryLimit   uint = 10
	openRetryBackoff      = 50 * time.Millisecond
)

// OpenStorage opens the leveldb store at path, waiting while another process holds it.
func OpenStorage(path string, logger logrus.FieldLogger) (storage.Storage, error) {
	var db storage.Storage
	action := func(attempt uint) error {
		var err error
		if db, err = leveldb.New(path); err != nil {
			logger.Debugf("open storage %s (attempt %d): %s", path, attempt, err)
			return err
		}
		return nil
	}

	if err := retry.Retry(action, strategy.Limit(openRetryLimit), strategy.Backoff(backoff.Fibonacci(openRetryBackoff))); err != nil {
		return nil, errors.Wrapf(err, "open storage %s", path)
	}
	return db, nil
}

// OpenGovernor opens the store at path and builds a governor over it. Closing the
// returned storage ends the governor's use.
func OpenGovernor(path string, cfg Config, clock Clock, resolver ActionResolver, logger logrus.FieldLogger) (*Governor, storage.Storage, error) {
	db, err := OpenStorage(path, logger)
	if err != nil {
		return nil, nil, err
	}
	gov, err := NewGovernor(cfg, db, clock, resolver, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return gov, db, nil
}

// StorageOpener opens the store at path for every pass and closes it afterwards, so
// other processes can use it between passes. Each pass starts with empty caches.
func StorageOpener(path string, cfg Config, clock Clock, resolver ActionResolver, logger logrus.FieldLogger) GovernorOpener {
	return func() (*Governor, func(), error) {
		gov, db, err := OpenGovernor(path, cfg, clock, resolver, logger)
		if err != nil {
			return nil, nil, err
		}
		return gov, func() {
			if err := db.Close(); err != nil {
				logger.Errorf("close storage %s: %s", path, err)
			}
		}, nil
	}
}
