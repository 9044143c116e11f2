package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/parliament/internal/ledger"
	"github.com/davidahmann/parliament/internal/ledger/ledgertest"
)

func TestInMemoryLogConformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Log { return ledger.NewInMemoryLog() })
}

func TestInMemoryLogConcurrentAppends(t *testing.T) {
	l := ledger.NewInMemoryLog()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Append(ctx, ledgertest.Record(fmt.Sprintf("sha256:c%d", i), "s", i))
		}(i)
	}
	wg.Wait()

	got, err := l.ReadBySession(ctx, "s", 1000)
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestInMemoryLogReturnsCopies(t *testing.T) {
	l := ledger.NewInMemoryLog()
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, ledgertest.Record("sha256:a", "s", 1)))

	got, err := l.Get(ctx, "sha256:a")
	require.NoError(t, err)
	got.BodyJSON[0] = 'X'

	again, err := l.Get(ctx, "sha256:a")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again.BodyJSON[0])
}
