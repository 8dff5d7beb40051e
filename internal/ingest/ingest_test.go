package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"parktronic/internal/domain"
	"parktronic/internal/repository"
	"parktronic/internal/repository/memory"
	"parktronic/internal/service"
)

type fakeIngester struct {
	mu  sync.Mutex
	got []domain.SnapshotInput
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, in domain.SnapshotInput) (domain.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.IngestResult{}, f.err
	}
	f.got = append(f.got, in)
	return domain.IngestResult{LotID: 1, ViewID: 1}, nil
}

const validBody = `{
	"id": null,
	"coordinates": [[55.75, 37.61]],
	"description": "Lot A",
	"city": "X", "street": "Y", "house": 1,
	"camera": 0,
	"rows": [{"coordinates": [[0, 0], [0, 1], [1, 1]], "capacity": 5, "free_places": [0, 2, 4]}]
}`

func TestDecode(t *testing.T) {
	in, err := Decode([]byte(validBody))
	require.NoError(t, err)
	require.False(t, in.ID.Valid)
	require.Equal(t, domain.Polyline{{55.75, 37.61}}, in.Coordinates)
	require.Len(t, in.Rows, 1)
	require.Equal(t, domain.RowCoordinates{{{0, 0}}, {{0, 1}}, {{1, 1}}}, in.Rows[0].Coordinates)
	require.Equal(t, domain.FreePlaces{0, 2, 4}, in.Rows[0].FreePlaces)

	in, err = Decode([]byte(`{"id": 7, "camera": 2, "rows": []}`))
	require.NoError(t, err)
	require.Equal(t, int64(7), in.ID.Int64)

	for _, body := range []string{
		`not json`,
		`{"coordinates": [[1, 2, 3]]}`,
		`{"rows": [{"coordinates": [[0, 0], [0, 1]]}]}`,
	} {
		_, err := Decode([]byte(body))
		require.ErrorIs(t, err, domain.ErrValidation, body)
		require.True(t, Permanent(err))
	}
}

func TestHandlerRejectsInvalidSnapshot(t *testing.T) {
	svc := &fakeIngester{}
	h := NewHandler(svc, zaptest.NewLogger(t))

	res, err := h.Handle(context.Background(), []byte(validBody))
	require.NoError(t, err)
	require.Equal(t, 1, res.LotID)

	_, err = h.Handle(context.Background(), []byte(`[]`))
	require.Error(t, err)
	require.Len(t, svc.got, 1)
}

func TestUnknownLotIsPermanent(t *testing.T) {
	log := zaptest.NewLogger(t)
	h := NewHandler(service.NewOccupancyService(memory.NewDB().OccupancyStore(), log), log)

	_, err := h.Handle(context.Background(), []byte(`{"id": 999, "camera": 0, "rows": []}`))
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.True(t, Permanent(err))

	require.False(t, Permanent(repository.ErrTimeout))
	require.False(t, Permanent(repository.ErrTransactionFailure))
	require.False(t, Permanent(errors.New("connection reset")))
}

func TestSQSConsumerDropsUnknownLot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeSQS{cancel: cancel, messages: []types.Message{
		{MessageId: aws.String("m"), ReceiptHandle: aws.String("r"), Body: aws.String(`{"id": 999, "camera": 0, "rows": []}`)},
	}}
	log := zaptest.NewLogger(t)
	h := NewHandler(service.NewOccupancyService(memory.NewDB().OccupancyStore(), log), log)
	NewSQSConsumer(client, "queue", h, log).Start(ctx)

	require.Equal(t, []string{"r"}, client.deleted)
}

type fakeSQS struct {
	cancel   context.CancelFunc
	messages []types.Message
	calls    int
	deleted  []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.calls++
	if f.calls == 1 {
		return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
	}
	f.cancel()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeSQS{cancel: cancel, messages: []types.Message{
		{MessageId: aws.String("ok"), ReceiptHandle: aws.String("r-ok"), Body: aws.String(validBody)},
		{MessageId: aws.String("bad"), ReceiptHandle: aws.String("r-bad"), Body: aws.String("{")},
		{MessageId: aws.String("empty"), ReceiptHandle: aws.String("r-empty")},
	}}
	svc := &fakeIngester{}
	c := NewSQSConsumer(client, "queue", NewHandler(svc, zaptest.NewLogger(t)), zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	require.Equal(t, []string{"r-ok", "r-bad", "r-empty"}, client.deleted)
	require.Len(t, svc.got, 1)
}

func TestSQSConsumerKeepsTransientFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeSQS{cancel: cancel, messages: []types.Message{
		{MessageId: aws.String("m"), ReceiptHandle: aws.String("r"), Body: aws.String(validBody)},
	}}
	svc := &fakeIngester{err: repository.ErrTimeout}
	NewSQSConsumer(client, "queue", NewHandler(svc, zaptest.NewLogger(t)), zaptest.NewLogger(t)).Start(ctx)

	require.Empty(t, client.deleted)
}

type ackRecord struct {
	acked, requeued bool
	nacked          bool
}

type fakeAcknowledger struct{ rec *ackRecord }

func (a fakeAcknowledger) Ack(uint64, bool) error {
	a.rec.acked = true
	return nil
}

func (a fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.rec.nacked, a.rec.requeued = true, requeue
	return nil
}

func (a fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

func TestAMQPDeliver(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want ackRecord
	}{
		{"stored", validBody, nil, ackRecord{acked: true}},
		{"invalid", `{"camera": -1}`, nil, ackRecord{nacked: true}},
		{"unknown lot", `{"id": 999, "camera": 0, "rows": []}`, fmt.Errorf("lot 999: %w", repository.ErrNotFound), ackRecord{nacked: true}},
		{"conflict", validBody, fmt.Errorf("view: %w", repository.ErrConflict), ackRecord{nacked: true}},
		{"timeout", validBody, fmt.Errorf("replace: %w", repository.ErrTimeout), ackRecord{nacked: true, requeued: true}},
		{"transient", validBody, errors.New("connection reset"), ackRecord{nacked: true, requeued: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ackRecord{}
			svc := &fakeIngester{err: tt.err}
			c := NewAMQPConsumer("", "q", NewHandler(svc, zaptest.NewLogger(t)), zaptest.NewLogger(t))

			c.deliver(context.Background(), amqp.Delivery{Acknowledger: fakeAcknowledger{rec}, Body: []byte(tt.body)})
			require.Equal(t, tt.want, *rec)
		})
	}
}

func TestNextBackoff(t *testing.T) {
	require.Equal(t, 2*time.Second, nextBackoff(time.Second))
	require.Equal(t, maxBackoff, nextBackoff(20*time.Second))
}
