package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/session"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/testutil"
)

type stubProber struct {
	identity model.Identity
	probeErr error
}

func (prober stubProber) Me(context.Context) (model.Identity, error) {
	return prober.identity, prober.probeErr
}

type countingProber struct {
	probeCount int
}

func (prober *countingProber) Me(context.Context) (model.Identity, error) {
	prober.probeCount++
	return model.Identity{}, nil
}

func TestFileStoreRoundTrip(testingT *testing.T) {
	store, storeErr := session.NewFileStore(testingT.TempDir())
	require.NoError(testingT, storeErr)

	loaded, loadErr := store.Load()
	require.NoError(testingT, loadErr)
	require.Empty(testingT, loaded)

	require.NoError(testingT, store.Save("Bearer test-token"))
	loaded, loadErr = store.Load()
	require.NoError(testingT, loadErr)
	require.Equal(testingT, "Bearer test-token", loaded)

	require.NoError(testingT, store.Clear())
	loaded, loadErr = store.Load()
	require.NoError(testingT, loadErr)
	require.Empty(testingT, loaded)

	// Clearing twice stays silent.
	require.NoError(testingT, store.Clear())
}

func TestNewFileStoreRequiresStateDirectory(testingT *testing.T) {
	_, storeErr := session.NewFileStore("   ")
	require.ErrorIs(testingT, storeErr, session.ErrMissingStateDirectory)
}

func TestRequireSessionRedirectsToLoginWithEscapedNextTarget(testingT *testing.T) {
	guard := session.NewGuard(testutil.NewMemoryCredentialStore(), nil)

	credential, redirect := guard.RequireSession(session.ViewPathConflicts)

	require.Empty(testingT, credential)
	require.NotNil(testingT, redirect)
	require.Equal(testingT, "/ui/login?next=%2Fui%2Fconflicts", redirect.Location)
}

func TestRequireSessionDefaultsNextTargetWhenPathIsBlank(testingT *testing.T) {
	guard := session.NewGuard(testutil.NewMemoryCredentialStore(), nil)

	_, redirect := guard.RequireSession("  ")

	require.NotNil(testingT, redirect)
	require.Equal(testingT, "/ui/login?next=%2Fui%2Fconflicts", redirect.Location)
}

func TestRequireSessionReturnsStoredCredential(testingT *testing.T) {
	credentialStore := testutil.NewMemoryCredentialStore()
	require.NoError(testingT, credentialStore.Save("Bearer abc"))
	guard := session.NewGuard(credentialStore, nil)

	credential, redirect := guard.RequireSession(session.ViewPathData)

	require.Nil(testingT, redirect)
	require.Equal(testingT, "Bearer abc", credential)
}

func TestEstablishWrapsTokenWithBearerScheme(testingT *testing.T) {
	credentialStore := testutil.NewMemoryCredentialStore()
	guard := session.NewGuard(credentialStore, nil)

	credential, establishErr := guard.Establish("  raw-token  ")

	require.NoError(testingT, establishErr)
	require.Equal(testingT, "Bearer raw-token", credential)
	stored, _ := credentialStore.Load()
	require.Equal(testingT, "Bearer raw-token", stored)
	require.True(testingT, guard.HasCredential())
}

func TestEstablishRejectsEmptyToken(testingT *testing.T) {
	guard := session.NewGuard(testutil.NewMemoryCredentialStore(), nil)

	_, establishErr := guard.Establish("   ")

	require.Error(testingT, establishErr)
	require.False(testingT, guard.HasCredential())
}

func TestValidateClearsCredentialWhenProbeFails(testingT *testing.T) {
	credentialStore := testutil.NewMemoryCredentialStore()
	require.NoError(testingT, credentialStore.Save("Bearer stale"))
	guard := session.NewGuard(credentialStore, nil)

	_, redirect := guard.Validate(context.Background(), stubProber{probeErr: errors.New("expired")}, session.ViewPathReport)

	require.NotNil(testingT, redirect)
	require.Equal(testingT, "/ui/login?next=%2Fui%2Freport", redirect.Location)
	require.False(testingT, guard.HasCredential())
}

func TestValidateReturnsIdentityWhenProbeSucceeds(testingT *testing.T) {
	credentialStore := testutil.NewMemoryCredentialStore()
	require.NoError(testingT, credentialStore.Save("Bearer fresh"))
	guard := session.NewGuard(credentialStore, nil)

	identity, redirect := guard.Validate(context.Background(), stubProber{identity: model.Identity{Subject: "operator", IsAdmin: true}}, session.ViewPathReport)

	require.Nil(testingT, redirect)
	require.Equal(testingT, "operator", identity.Subject)
	require.True(testingT, identity.IsAdmin)
	require.True(testingT, guard.HasCredential())
}

func TestValidateWithoutCredentialSkipsProbe(testingT *testing.T) {
	guard := session.NewGuard(testutil.NewMemoryCredentialStore(), nil)
	prober := &countingProber{}

	_, redirect := guard.Validate(context.Background(), prober, session.ViewPathQuery)

	require.NotNil(testingT, redirect)
	require.Equal(testingT, "/ui/login?next=%2Fui%2Fquery", redirect.Location)
	require.Zero(testingT, prober.probeCount)
}

func TestConflictDetailPath(testingT *testing.T) {
	require.Equal(testingT, "/ui/conflicts/42", session.ConflictDetailPath(42))
}
