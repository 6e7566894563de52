package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
)

// maxConflictRetries bounds how often an upsert is replayed after losing a write race
const maxConflictRetries = 10

// Badger db implementation
type Badger struct {
	db       *badger.DB
	now      func() time.Time
	cancelGC func()
	wg       sync.WaitGroup
}

// NewBadger creates a new badger instance for the given path
func NewBadger(dbPath string, opts ...Option) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at path %s: %w", dbPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Badger{
		db:       db,
		now:      newOptions(opts).now,
		cancelGC: cancel,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for b.db.RunValueLogGC(0.5) == nil && ctx.Err() == nil {
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return b, nil
}

// Close the database
func (b *Badger) Close() error {
	b.cancelGC()
	b.wg.Wait()

	return b.db.Close()
}

func getJSON(tx *badger.Txn, key []byte, value interface{}) error {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}

		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, value)
	})
}

func setJSON(tx *badger.Txn, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return tx.Set(key, data)
}

// eachPrefix calls fn with the raw value of every key under prefix
func eachPrefix(tx *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := tx.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)

		err := item.Value(func(val []byte) error {
			return fn(key, val)
		})

		if err != nil {
			return err
		}
	}

	return nil
}

// AddUser to the database
func (b *Badger) AddUser(user *User) error {
	return b.db.Update(func(tx *badger.Txn) error {
		key := user.badgerKey()
		if _, err := tx.Get(key); err == nil {
			return fmt.Errorf("user %s already exists", user.Name)
		}

		if err := setJSON(tx, key, user); err != nil {
			return fmt.Errorf("failed to JSON marshal user: %w", err)
		}

		return nil
	})
}

// GetUser from the database, ErrNotFound when the username is unknown
func (b *Badger) GetUser(username string) (user *User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		user = &User{}

		err := getJSON(tx, badgerKeyForUsername(username), user)
		if err != nil {
			return fmt.Errorf("failed to get user value for username %s: %w", username, err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return
}

// GetUserByID from the database, ErrNotFound when the id is unknown
func (b *Badger) GetUserByID(id uuid.UUID) (*User, error) {
	users, err := b.ListUsers()
	if err != nil {
		return nil, err
	}

	for _, user := range users {
		if user.ID == id {
			return user, nil
		}
	}

	return nil, fmt.Errorf("failed to get user with id %s: %w", id, ErrNotFound)
}

// ListUsers from the database
func (b *Badger) ListUsers() (users []*User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		return eachPrefix(tx, []byte("user:"), func(key, val []byte) error {
			user := &User{}
			err := json.Unmarshal(val, user)
			if err != nil {
				return fmt.Errorf("failed to unmarshal user value for user key %s: %w", string(key), err)
			}

			users = append(users, user)

			return nil
		})
	})

	return
}

// AddMedication to the database, replacing any medication with the same id
func (b *Badger) AddMedication(medication *Medication) error {
	return b.db.Update(func(tx *badger.Txn) error {
		if err := setJSON(tx, medication.badgerKey(), medication); err != nil {
			return fmt.Errorf("failed to JSON marshal medication: %w", err)
		}

		return tx.Set(badgerIndexKeyForMedication(medication.ID), medication.IDUser[:])
	})
}

// EndMedication archives a medication by setting its end date to the day
// before now. The record and its intake history are kept.
func (b *Badger) EndMedication(ctx context.Context, id uuid.UUID, now time.Time) (medication *Medication, err error) {
	err = b.db.Update(func(tx *badger.Txn) error {
		medication, err = getMedication(tx, id)
		if err != nil {
			return err
		}

		year, month, day := now.Date()
		yesterday := time.Date(year, month, day, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)

		medication.EndDate = &yesterday
		medication.UpdatedAt = now

		if err := setJSON(tx, medication.badgerKey(), medication); err != nil {
			return fmt.Errorf("failed to JSON marshal medication: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to end medication %s: %w", id, err)
	}

	return
}

func getMedication(tx *badger.Txn, id uuid.UUID) (*Medication, error) {
	item, err := tx.Get(badgerIndexKeyForMedication(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	var userID uuid.UUID
	err = item.Value(func(val []byte) error {
		userID, err = uuid.FromBytes(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read medication index for %s: %w", id, err)
	}

	medication := &Medication{}
	key := (&Medication{IDUser: userID, ID: id}).badgerKey()
	if err := getJSON(tx, key, medication); err != nil {
		return nil, err
	}

	return medication, nil
}

// GetMedication by id
func (b *Badger) GetMedication(ctx context.Context, id uuid.UUID) (medication *Medication, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		medication, err = getMedication(tx, id)
		return err
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get medication %s: %w", id, err)
	}

	return
}

// ListMedicationsForUser from the database
func (b *Badger) ListMedicationsForUser(user *User) (medications []*Medication, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		medications, err = listMedications(tx, badgerPrefixKeyForMedicationUser(user))
		return err
	})

	return
}

// ListActiveMedications returns every medication whose end date has not passed as of now
func (b *Badger) ListActiveMedications(ctx context.Context, now time.Time) ([]*Medication, error) {
	var all []*Medication
	err := b.db.View(func(tx *badger.Txn) (err error) {
		all, err = listMedications(tx, []byte("medication:"))
		return
	})

	if err != nil {
		return nil, err
	}

	active := make([]*Medication, 0, len(all))
	for _, medication := range all {
		if !medication.Lapsed(now) {
			active = append(active, medication)
		}
	}

	return active, nil
}

func listMedications(tx *badger.Txn, prefix []byte) (medications []*Medication, err error) {
	err = eachPrefix(tx, prefix, func(key, val []byte) error {
		medication := &Medication{}
		err := json.Unmarshal(val, medication)
		if err != nil {
			return fmt.Errorf("failed to unmarshal medication value for medication key %s: %w", string(key), err)
		}

		medications = append(medications, medication)

		return nil
	})

	return
}

// PushoverTokens for the devices a medication notifies
func (b *Badger) PushoverTokens(ctx context.Context, patientID, medicationID uuid.UUID) ([]string, error) {
	user, err := b.GetUserByID(patientID)
	if err != nil {
		return nil, err
	}

	medication, err := b.GetMedication(ctx, medicationID)
	if err != nil {
		return nil, err
	}

	return user.PushoverTokensFor(medication.IntervalPushoverDevices), nil
}

// FindIntake by natural key
func (b *Badger) FindIntake(ctx context.Context, medicationID uuid.UUID, scheduledTime time.Time) (log *IntakeLog, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		log = &IntakeLog{}
		return getJSON(tx, badgerKeyForIntake(medicationID, scheduledTime), log)
	})

	if err != nil {
		return nil, fmt.Errorf("failed to find intake for medication %s at %s: %w", medicationID, scheduledTime, err)
	}

	return
}

// UpsertIntake merges log into the record for its natural key. A write that
// loses a race to a concurrent writer is replayed against the winner's record.
func (b *Badger) UpsertIntake(ctx context.Context, log *IntakeLog) (stored *IntakeLog, err error) {
	for attempt := 0; ; attempt++ {
		err = b.db.Update(func(tx *badger.Txn) error {
			existing := &IntakeLog{}
			err := getJSON(tx, log.badgerKey(), existing)
			if errors.Is(err, ErrNotFound) {
				existing = nil
			} else if err != nil {
				return err
			}

			stored = mergeIntake(existing, log, b.now())

			if err := setJSON(tx, stored.badgerKey(), stored); err != nil {
				return fmt.Errorf("failed to JSON marshal intake log: %w", err)
			}

			return nil
		})

		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries || ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to upsert intake for medication %s at %s: %w", log.MedicationID, log.ScheduledTime, err)
	}

	return stored, nil
}

// ListIntakesBetween returns the records scheduled within [start, end]
func (b *Badger) ListIntakesBetween(ctx context.Context, start, end time.Time) (logs []*IntakeLog, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		return eachPrefix(tx, []byte("intake:"), func(key, val []byte) error {
			log := &IntakeLog{}
			if err := json.Unmarshal(val, log); err != nil {
				return fmt.Errorf("failed to unmarshal intake value for key %x: %w", key, err)
			}

			if log.ScheduledTime.Before(start) || log.ScheduledTime.After(end) {
				return nil
			}

			logs = append(logs, log)

			return nil
		})
	})

	return
}

// ListIntakeHistory returns the records matching filter, latest scheduled first
func (b *Badger) ListIntakeHistory(ctx context.Context, filter IntakeFilter) (logs []*IntakeLog, err error) {
	prefix := []byte("intake:")
	if filter.MedicationID != uuid.Nil {
		prefix = badgerPrefixKeyForIntakeMedication(filter.MedicationID)
	}

	err = b.db.View(func(tx *badger.Txn) error {
		return eachPrefix(tx, prefix, func(key, val []byte) error {
			log := &IntakeLog{}
			if err := json.Unmarshal(val, log); err != nil {
				return fmt.Errorf("failed to unmarshal intake value for key %x: %w", key, err)
			}

			if filter.matches(log) {
				logs = append(logs, log)
			}

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list intake history: %w", err)
	}

	sortLatestFirst(logs)

	if filter.Limit > 0 && len(logs) > filter.Limit {
		logs = logs[:filter.Limit]
	}

	return logs, nil
}

// DeleteIntakesForMedication removes the intake history of a medication
func (b *Badger) DeleteIntakesForMedication(ctx context.Context, medicationID uuid.UUID) error {
	return b.db.Update(func(tx *badger.Txn) error {
		var keys [][]byte
		err := eachPrefix(tx, badgerPrefixKeyForIntakeMedication(medicationID), func(key, _ []byte) error {
			keys = append(keys, key)
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return fmt.Errorf("failed to delete intake key %x: %w", key, err)
			}
		}

		return nil
	})
}

// PutTimer persists a pending wake-up, replacing any entry with the same key
func (b *Badger) PutTimer(ctx context.Context, entry *TimerEntry) error {
	return b.db.Update(func(tx *badger.Txn) error {
		if err := setJSON(tx, entry.badgerKey(), entry); err != nil {
			return fmt.Errorf("failed to JSON marshal timer %d: %w", entry.Key, err)
		}

		return nil
	})
}

// DeleteTimer removes a pending wake-up; a missing key is not an error
func (b *Badger) DeleteTimer(ctx context.Context, key int32) error {
	return b.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(badgerKeyForTimer(key))
	})
}

// ListTimers returns every persisted wake-up
func (b *Badger) ListTimers(ctx context.Context) (entries []*TimerEntry, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		return eachPrefix(tx, []byte("timer:"), func(key, val []byte) error {
			entry := &TimerEntry{}
			if err := json.Unmarshal(val, entry); err != nil {
				return fmt.Errorf("failed to unmarshal timer value for key %x: %w", key, err)
			}

			entries = append(entries, entry)

			return nil
		})
	})

	return
}
