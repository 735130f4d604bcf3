package sender

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsJobs(t *testing.T) {
	req := require.New(t)
	d := NewDispatcher(DispatcherOptions{Workers: 2, QueueSize: 8})

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		req.NoError(d.Enqueue(context.Background(), "send_text", func() error {
			ran.Add(1)
			return nil
		}))
	}
	d.Close()

	req.Equal(int32(5), ran.Load())
	req.Zero(d.ErrorCount())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	req := require.New(t)
	d := NewDispatcher(DispatcherOptions{})
	d.Close()

	err := d.Enqueue(context.Background(), "send_text", func() error { return nil })
	req.ErrorIs(err, ErrQueueClosed)
}

func TestDispatcherCountsFailures(t *testing.T) {
	req := require.New(t)
	d := NewDispatcher(DispatcherOptions{Workers: 1})

	req.NoError(d.Enqueue(context.Background(), "send_text", func() error {
		return context.Canceled
	}))
	d.Close()

	req.Equal(uint64(1), d.ErrorCount())
}

func TestSanitizeErrorMessage(t *testing.T) {
	req := require.New(t)
	err := errorString("Post https://api.telegram.org/bot12345:AAAbbbCCC/sendMessage: timeout")
	req.NotContains(sanitizeErrorMessage(err), "12345:AAAbbbCCC")
}

type errorString string

func (e errorString) Error() string { return string(e) }
