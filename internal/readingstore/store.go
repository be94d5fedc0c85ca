// Package readingstore contains the durable destinations the ingest pipeline writes reading batches to.
// Every store reports failures as *fogwellerrors.ErrStorage so the pipeline can decide between retrying
// and discarding a batch.
package readingstore

import "github.com/fogwell/fogwell/internal/ingest"

var (
	_ ingest.ReadingStore = &PostgresStore{}
	_ ingest.ReadingStore = &SqliteStore{}
	_ ingest.ReadingStore = &RedisStore{}
	_ ingest.ReadingStore = &PulsarStore{}
	_ ingest.ReadingStore = &S3Store{}
	_ ingest.ReadingStore = &MemoryStore{}
)
