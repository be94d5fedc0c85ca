package readingstore

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/common/util"
	"github.com/fogwell/fogwell/internal/ingest"
)

const (
	pulsarSource = "pulsar"

	BatchSizeProperty = "fogwell_batch_size"
	BatchIdProperty   = "fogwell_batch_id"
)

// PulsarStore publishes each batch as one message holding a JSON array of readings.
// The message key is the batch id so a retried batch can be recognised downstream.
type PulsarStore struct {
	producer pulsar.Producer
}

func NewPulsarStore(producer pulsar.Producer) *PulsarStore {
	return &PulsarStore{producer: producer}
}

func (s *PulsarStore) Append(ctx context.Context, batch []*ingest.ReadingRecord) error {
	if len(batch) == 0 {
		return nil
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fogwellerrors.NewStorageError(pulsarSource, errors.WithStack(err), false)
	}
	batchId := util.NewULID()
	msg := &pulsar.ProducerMessage{
		Payload:   payload,
		Key:       batchId,
		EventTime: batch[0].UserTimestamp,
		Properties: map[string]string{
			BatchSizeProperty: strconv.Itoa(len(batch)),
			BatchIdProperty:   batchId,
		},
	}
	if _, err := s.producer.Send(ctx, msg); err != nil {
		return classifyPulsarError(err)
	}
	return nil
}

func classifyPulsarError(err error) error {
	retryable := false
	var pulsarErr *pulsar.Error
	if errors.As(err, &pulsarErr) {
		switch pulsarErr.Result() {
		case pulsar.TimeoutError, pulsar.ProducerQueueIsFull, pulsar.ConnectError, pulsar.LookupError:
			retryable = true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		retryable = true
	}
	return fogwellerrors.NewStorageError(pulsarSource, errors.WithStack(err), retryable)
}
