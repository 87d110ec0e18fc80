package kafka

import (
	"context"
	"errors"
	"testing"

	"ms-registration/internal/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, log: logger.New(nil)}

	require.NoError(t, p.Publish(context.Background(), "registration.order.confirmed", "ORDER1", []byte(`{"a":1}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "registration.order.confirmed", w.msgs[0].Topic)
	assert.Equal(t, []byte("ORDER1"), w.msgs[0].Key)

	w.err = errors.New("leader not available")
	err := p.Publish(context.Background(), "t", "k", nil)
	assert.ErrorContains(t, err, "publish to t")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestEnsureTopicsExistNeedsBrokers(t *testing.T) {
	assert.Error(t, EnsureTopicsExist(nil, []string{"x"}, logger.New(nil)))
}
