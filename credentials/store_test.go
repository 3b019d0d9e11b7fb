package credentials_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-workspace-gateway/credentials"
	fakecredentialrepo "github.com/jrsteele09/go-workspace-gateway/credentials/repofake"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/stretchr/testify/require"
)

const testAccount = "alice@example.com"

var testKey = []byte("0123456789abcdef0123456789abcdef")

type storeFixture struct {
	repo  *fakecredentialrepo.FakeCredentialRepo
	store *credentials.Store
}

func setupStore(t *testing.T) *storeFixture {
	t.Helper()
	c, err := credentials.NewCipher(testKey)
	require.NoError(t, err)
	repo := fakecredentialrepo.NewFakeCredentialRepo()
	return &storeFixture{repo: repo, store: credentials.NewStore(repo, c)}
}

func record(issuedAt time.Time, access string) *credentials.Record {
	return &credentials.Record{
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		Expiry:       issuedAt.Add(time.Hour),
		IssuedAt:     issuedAt,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	issued := time.Date(2025, 1, 1, 12, 0, 0, 123456789, time.UTC)

	want := record(issued, "ya29.access")
	require.NoError(t, f.store.Put(ctx, testAccount, want))

	got, err := f.store.Get(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, want.AccessToken, got.AccessToken)
	require.Equal(t, want.RefreshToken, got.RefreshToken)
	require.True(t, want.Expiry.Equal(got.Expiry))
	require.True(t, want.IssuedAt.Equal(got.IssuedAt))
}

func TestStore_EncryptedAtRest(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	require.NoError(t, f.store.Put(ctx, testAccount, record(time.Now(), "plain-access-token")))

	sealed, err := f.repo.Load(ctx, testAccount)
	require.NoError(t, err)
	require.NotContains(t, string(sealed.Ciphertext), "plain-access-token")
	require.NotContains(t, string(sealed.Ciphertext), "refresh-plain-access-token")
}

func TestStore_GetNormalisesAccount(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	require.NoError(t, f.store.Put(ctx, "Alice@Example.com", record(time.Now(), "a")))
	_, err := f.store.Get(ctx, testAccount)
	require.NoError(t, err)
}

func TestStore_MissingAccount(t *testing.T) {
	f := setupStore(t)
	_, err := f.store.Get(context.Background(), "nobody@example.com")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestStore_RejectsOlderWrite(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	t1 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	require.NoError(t, f.store.Put(ctx, testAccount, record(t2, "newer")))

	err := f.store.Put(ctx, testAccount, record(t1, "older"))
	require.True(t, apperrors.Is(err, apperrors.ErrStaleWrite))

	got, err := f.store.Get(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, "newer", got.AccessToken)
}

func TestStore_EqualIssuedAtOverwrites(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	t1 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.store.Put(ctx, testAccount, record(t1, "first")))
	require.NoError(t, f.store.Put(ctx, testAccount, record(t1, "second")))

	got, err := f.store.Get(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, "second", got.AccessToken)
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name   string
		record *credentials.Record
	}{
		{"nil", nil},
		{"missing issued_at", &credentials.Record{AccessToken: "a", Expiry: now}},
		{"access token without expiry", &credentials.Record{AccessToken: "a", IssuedAt: now}},
		{"expiry without access token", &credentials.Record{Expiry: now, IssuedAt: now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.store.Put(ctx, testAccount, tt.record)
			require.True(t, apperrors.Is(err, apperrors.ErrInvalidRecord))
		})
	}

	// refresh-token-only records are allowed
	require.NoError(t, f.store.Put(ctx, testAccount, &credentials.Record{RefreshToken: "r", IssuedAt: now}))
}

func TestStore_Delete(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	require.NoError(t, f.store.Put(ctx, testAccount, record(time.Now(), "a")))
	require.NoError(t, f.store.Delete(ctx, testAccount))

	_, err := f.store.Get(ctx, testAccount)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	require.True(t, apperrors.Is(f.store.Delete(ctx, testAccount), apperrors.ErrNotFound))
}

func TestStore_WrongKeyFailsToDecrypt(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, testAccount, record(time.Now(), "a")))

	other, err := credentials.NewCipher([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	_, err = credentials.NewStore(f.repo, other).Get(ctx, testAccount)
	require.True(t, apperrors.Is(err, apperrors.ErrDecryptFailed))
}

func TestStore_BlobBoundToAccount(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, testAccount, record(time.Now(), "a")))

	sealed, err := f.repo.Load(ctx, testAccount)
	require.NoError(t, err)
	sealed.Account = "mallory@example.com"
	require.NoError(t, f.repo.Save(ctx, sealed))

	_, err = f.store.Get(ctx, "mallory@example.com")
	require.True(t, apperrors.Is(err, apperrors.ErrDecryptFailed))
}

func TestStore_ConcurrentPutsKeepNewest(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	const writers = 50
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- f.store.Put(ctx, testAccount, record(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("token-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			require.True(t, apperrors.Is(err, apperrors.ErrStaleWrite))
		}
	}

	got, err := f.store.Get(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("token-%d", writers-1), got.AccessToken)
}

func TestNewCipher_ShortKey(t *testing.T) {
	_, err := credentials.NewCipher([]byte("short"))
	require.Error(t, err)
}
