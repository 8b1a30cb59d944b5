package execution

import (
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	executionsTable = "executions"
	idIndex         = "id"       // lookup by execution id
	scenarioIndex   = "scenario" // executions of one scenario in creation order
)

// ExecutionStore keeps execution records. Records passed to Put and
// returned by Get or List are owned by the caller.
type ExecutionStore interface {
	Get(id string) (*Record, error)
	Put(r *Record) error
	List(scenarioID string) ([]*Record, error)
}

// MemStore is an in-process ExecutionStore on go-memdb. Records do not
// survive a restart.
type MemStore struct {
	db *memdb.MemDB
}

func NewMemStore() (*MemStore, error) {
	db, err := memdb.NewMemDB(storeSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemStore{db: db}, nil
}

// Get returns a copy of the record, or ErrExecutionNotFound.
func (s *MemStore) Get(id string) (*Record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	obj, err := txn.First(executionsTable, idIndex, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, errors.Wrapf(ErrExecutionNotFound, "%q", id)
	}
	return obj.(*Record).clone(), nil
}

// Put inserts or replaces a record. The stored value is a copy, since
// objects inside memdb must never be modified in place.
func (s *MemStore) Put(r *Record) error {
	txn := s.db.Txn(true)
	if err := txn.Insert(executionsTable, r.clone()); err != nil {
		txn.Abort()
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

// List returns copies of the records of a scenario in creation order.
// An empty scenario id lists every record.
func (s *MemStore) List(scenarioID string) ([]*Record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	var it memdb.ResultIterator
	var err error
	if scenarioID == "" {
		it, err = txn.Get(executionsTable, idIndex)
	} else {
		it, err = txn.Get(executionsTable, scenarioIndex+"_prefix", scenarioID)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	out := make([]*Record, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		r := obj.(*Record)
		// The prefix scan also matches longer ids sharing the prefix.
		if scenarioID != "" && r.ScenarioID != scenarioID {
			continue
		}
		out = append(out, r.clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

func storeSchema() *memdb.DBSchema {
	indexes := make(map[string]*memdb.IndexSchema)
	indexes[idIndex] = &memdb.IndexSchema{
		Name:    idIndex,
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: "ID"},
	}
	indexes[scenarioIndex] = &memdb.IndexSchema{
		Name:   scenarioIndex,
		Unique: false,
		Indexer: &memdb.CompoundIndex{
			Indexes: []memdb.Indexer{
				&memdb.StringFieldIndex{Field: "ScenarioID"},
				&memdb.IntFieldIndex{Field: "Created"},
			},
			AllowMissing: true,
		},
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			executionsTable: {
				Name:    executionsTable,
				Indexes: indexes,
			},
		},
	}
}
