package authflowrepo_test

import (
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/server/authflowrepo"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepo_TakeIsSingleUse(t *testing.T) {
	repo := authflowrepo.NewInMemoryRepo()
	created := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert("flow-1", &authflowrepo.AuthFlowState{
		SessionID:    "S1",
		CodeVerifier: "verifier",
		Nonce:        "nonce",
		CreatedAt:    created,
	}))

	flow, err := repo.Take("flow-1")
	require.NoError(t, err)
	require.Equal(t, "S1", flow.SessionID)
	require.Equal(t, "verifier", flow.CodeVerifier)
	require.Equal(t, "nonce", flow.Nonce)

	_, err = repo.Take("flow-1")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestInMemoryRepo_StoresCopies(t *testing.T) {
	repo := authflowrepo.NewInMemoryRepo()
	state := &authflowrepo.AuthFlowState{SessionID: "S1"}
	require.NoError(t, repo.Upsert("flow-1", state))

	state.SessionID = "changed"
	got, err := repo.Get("flow-1")
	require.NoError(t, err)
	require.Equal(t, "S1", got.SessionID)

	got.SessionID = "changed again"
	again, err := repo.Get("flow-1")
	require.NoError(t, err)
	require.Equal(t, "S1", again.SessionID)
}

func TestInMemoryRepo_Validation(t *testing.T) {
	repo := authflowrepo.NewInMemoryRepo()
	require.Error(t, repo.Upsert("", &authflowrepo.AuthFlowState{}))
	require.Error(t, repo.Upsert("flow-1", nil))
	require.Error(t, repo.Delete(""))
}

func TestInMemoryRepo_DeleteExpired(t *testing.T) {
	repo := authflowrepo.NewInMemoryRepo()
	base := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert("old", &authflowrepo.AuthFlowState{CreatedAt: base}))
	require.NoError(t, repo.Upsert("new", &authflowrepo.AuthFlowState{CreatedAt: base.Add(20 * time.Minute)}))

	require.Equal(t, 1, repo.DeleteExpired(base.Add(5*time.Minute)))

	_, err := repo.Get("old")
	require.Error(t, err)
	_, err = repo.Get("new")
	require.NoError(t, err)
}
