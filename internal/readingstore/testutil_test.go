package readingstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fogwell/fogwell/internal/ingest"
)

var baseTime = time.Date(2022, 11, 3, 10, 0, 0, 0, time.UTC)

func testBatch(asset string, n int, withKeys bool) []*ingest.ReadingRecord {
	batch := make([]*ingest.ReadingRecord, n)
	for i := range batch {
		r := &ingest.ReadingRecord{
			AssetCode:     asset,
			UserTimestamp: baseTime.Add(time.Duration(i) * time.Second),
			Reading: ingest.Reading{
				"seq":   ingest.NumberValue(float64(i)),
				"label": ingest.StringValue(fmt.Sprintf("r%d", i)),
			},
		}
		if withKeys {
			key := uuid.New()
			r.ReadKey = &key
		}
		batch[i] = r
	}
	return batch
}
