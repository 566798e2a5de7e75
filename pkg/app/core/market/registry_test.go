package market

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

func TestRegistry_CapacityBoundary(t *testing.T) {
	r := NewRegistry(2)

	a, err := r.LookupOrCreate("AAA")
	require.NoError(t, err)
	b, err := r.LookupOrCreate("BBB")
	require.NoError(t, err)

	_, err = r.LookupOrCreate("CCC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	var capErr *CapacityExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "CCC", capErr.Instrument)
	assert.Equal(t, 2, capErr.Capacity)

	// existing instruments are still served, and the same book comes back
	again, err := r.LookupOrCreate("AAA")
	require.NoError(t, err)
	assert.Same(t, a, again)
	again, err = r.LookupOrCreate("BBB")
	require.NoError(t, err)
	assert.Same(t, b, again)

	assert.Equal(t, 2, r.Count())
	_, err = r.Lookup("CCC")
	assert.True(t, errors.Is(err, ErrUnknownInstrument), "rejected instrument must not be registered")
}

func TestRegistry_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRegistry(0).Capacity())
	assert.Equal(t, 7, NewRegistry(7).Capacity())
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(4)

	_, err := r.Lookup("AAA")
	assert.True(t, errors.Is(err, ErrUnknownInstrument))
	assert.Zero(t, r.Count(), "lookup must not create")

	created, err := r.LookupOrCreate("AAA")
	require.NoError(t, err)
	got, err := r.Lookup("AAA")
	require.NoError(t, err)
	assert.Same(t, created, got)
	assert.Equal(t, "AAA", got.Instrument())
}

func TestRegistry_Instruments(t *testing.T) {
	r := NewRegistry(8)
	for _, s := range []string{"MSFT", "AAPL", "GOOG"} {
		_, err := r.LookupOrCreate(s)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, r.Instruments())
	assert.Len(t, r.Books(), 3)
}

func TestRegistry_ConcurrentFirstReference(t *testing.T) {
	r := NewRegistry(DefaultCapacity)
	seq := orderbook.NewSequencer(0)

	const workers = 32
	books := make([]*orderbook.Book, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := r.LookupOrCreate("NEW")
			if err != nil {
				t.Errorf("lookup: %v", err)
				return
			}
			books[i] = b
			b.Accept(orderbook.NewOrder(orderbook.Buy, "NEW", 1, decimal.NewFromInt(1)), seq)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, r.Count())
	for i := 1; i < workers; i++ {
		assert.Same(t, books[0], books[i])
	}
	bids, _ := books[0].Len()
	assert.Equal(t, workers, bids, "no order lost to a duplicate book")
}

func TestRegistry_ConcurrentCapacityRace(t *testing.T) {
	r := NewRegistry(10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rejected int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.LookupOrCreate(fmt.Sprintf("SYM%d", i)); err != nil {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, r.Count())
	assert.Equal(t, 40, rejected)
}
