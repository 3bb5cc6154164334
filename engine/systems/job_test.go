package systems

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobSystemRunsAllJobs(t *testing.T) {
	js, err := NewJobSystem(4, 16)
	require.NoError(t, err)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		js.Submit(JobTask{
			Name: "work",
			Run: func() error {
				defer wg.Done()
				count.Add(1)
				return nil
			},
		})
	}
	wg.Wait()
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(32), count.Load())
}

func TestJobSystemFailureCallback(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)

	boom := errors.New("decode exploded")
	var got error
	var wg sync.WaitGroup
	wg.Add(1)
	js.Submit(JobTask{
		Name: "failing",
		Run:  func() error { return boom },
		OnFailure: func(err error) {
			got = err
			wg.Done()
		},
	})
	wg.Wait()
	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, got, boom)
}

func TestJobSystemRejectsBadConfig(t *testing.T) {
	_, err := NewJobSystem(0, 4)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = NewJobSystem(2, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}
