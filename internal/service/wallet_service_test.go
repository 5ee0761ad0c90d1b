package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhmVu/EBN-Besu/internal/wallet"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
)

// low scrypt cost keeps the suite fast
var testKeyParams = wallet.Params{N: 1024, R: 8, P: 1}

func TestWalletService_ProvisionAndDiscloseOnce(t *testing.T) {
	keys := newMemWalletKeys()
	svc := NewWalletService(keys, testKeyParams, nil, nil)
	ctx := context.Background()

	address, err := svc.Provision(ctx, "student-1", "s3cret")
	require.NoError(t, err)
	assert.True(t, wallet.ValidAddress(address))

	plain, err := svc.Disclose(ctx, "student-1", "s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plain, "0x"))

	_, err = svc.Disclose(ctx, "student-1", "s3cret")
	assert.ErrorIs(t, err, appErrors.ErrKeyDisclosed)

	status, err := svc.Status(ctx, "student-1")
	require.NoError(t, err)
	assert.True(t, status.Disclosed)
	assert.NotNil(t, status.DisclosedAt)
}

func TestWalletService_WrongSecretKeepsKeySealed(t *testing.T) {
	keys := newMemWalletKeys()
	svc := NewWalletService(keys, testKeyParams, nil, nil)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "student-1", "right")
	require.NoError(t, err)

	_, err = svc.Disclose(ctx, "student-1", "wrong")
	assert.ErrorIs(t, err, appErrors.ErrWrongSecret)

	// the failed attempt must not consume the single disclosure
	plain, err := svc.Disclose(ctx, "student-1", "right")
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
}

func TestWalletService_SignerKeyIsNotDisclosure(t *testing.T) {
	keys := newMemWalletKeys()
	svc := NewWalletService(keys, testKeyParams, nil, nil)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "student-1", "s3cret")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		plain, err := svc.SignerKey(ctx, "student-1", "s3cret")
		require.NoError(t, err)
		assert.NotEmpty(t, plain)
	}

	status, err := svc.Status(ctx, "student-1")
	require.NoError(t, err)
	assert.False(t, status.Disclosed)
}

func TestWalletService_ConcurrentDiscloseSingleWinner(t *testing.T) {
	keys := newMemWalletKeys()
	svc := NewWalletService(keys, testKeyParams, nil, nil)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "student-1", "s3cret")
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Disclose(ctx, "student-1", "s3cret")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, appErrors.ErrKeyDisclosed)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestWalletService_DiscloseUnknownUser(t *testing.T) {
	svc := NewWalletService(newMemWalletKeys(), testKeyParams, nil, nil)

	_, err := svc.Disclose(context.Background(), "ghost", "s3cret")
	assert.ErrorIs(t, err, appErrors.ErrWalletMissing)
}
