package readingstore

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/ingest"
)

const (
	memorySource  = "memory"
	readingsTable = "readings"
	idIndex       = "id"
	readKeyIndex  = "read_key"
	assetIndex    = "asset"
)

type storedReading struct {
	Id        uint64
	ReadKey   string
	AssetCode string
	Record    *ingest.ReadingRecord
}

// MemoryStore keeps readings in an in-process go-memdb database. It honours read keys like the durable stores.
type MemoryStore struct {
	db     *memdb.MemDB
	mu     sync.Mutex
	nextId uint64
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			readingsTable: {
				Name: readingsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.UintFieldIndex{Field: "Id"},
					},
					readKeyIndex: {
						Name:         readKeyIndex,
						Unique:       true,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "ReadKey"},
					},
					assetIndex: {
						Name:    assetIndex,
						Indexer: &memdb.StringFieldIndex{Field: "AssetCode"},
					},
				},
			},
		},
	}
}

func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemoryStore{db: db}, nil
}

func (s *MemoryStore) Append(_ context.Context, batch []*ingest.ReadingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.db.Txn(true)
	defer txn.Abort()
	nextId := s.nextId
	for _, r := range batch {
		row := &storedReading{AssetCode: r.AssetCode, Record: r}
		if r.ReadKey != nil {
			row.ReadKey = r.ReadKey.String()
			existing, err := txn.First(readingsTable, readKeyIndex, row.ReadKey)
			if err != nil {
				return fogwellerrors.NewStorageError(memorySource, errors.WithStack(err), false)
			}
			if existing != nil {
				continue
			}
		}
		nextId++
		row.Id = nextId
		if err := txn.Insert(readingsTable, row); err != nil {
			return fogwellerrors.NewStorageError(memorySource, errors.WithStack(err), false)
		}
	}
	txn.Commit()
	s.nextId = nextId
	return nil
}

// All returns every stored reading in the order it was written.
func (s *MemoryStore) All() ([]*ingest.ReadingRecord, error) {
	return s.query(idIndex)
}

// ByAsset returns the stored readings for one asset in the order they were written.
func (s *MemoryStore) ByAsset(asset string) ([]*ingest.ReadingRecord, error) {
	return s.query(assetIndex, asset)
}

func (s *MemoryStore) query(index string, args ...interface{}) ([]*ingest.ReadingRecord, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(readingsTable, index, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var rows []*storedReading
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rows = append(rows, obj.(*storedReading))
	}
	// Index order is by encoded key, not insertion.
	sort.Slice(rows, func(i, j int) bool { return rows[i].Id < rows[j].Id })
	result := make([]*ingest.ReadingRecord, len(rows))
	for i, row := range rows {
		result[i] = row.Record
	}
	return result, nil
}
