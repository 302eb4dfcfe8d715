package apiclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/apiclient"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/session"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/testutil"
)

const (
	testAccessToken       = "access-token-123"
	testBearerCredential  = "Bearer " + testAccessToken
	testOperatorName      = "operator"
	testOperatorPassword  = "correct horse"
	testPublicReadToken   = "public-read-token"
	testConflictTableName = "products"
)

type backendFixture struct {
	router          *gin.Engine
	server          *httptest.Server
	requestCount    int64
	lastAuthHeader  atomic.Value
	lastAcceptValue atomic.Value
}

func newBackendFixture(testingT *testing.T) *backendFixture {
	testingT.Helper()
	gin.SetMode(gin.TestMode)
	fixture := &backendFixture{router: gin.New()}
	fixture.router.Use(func(ginContext *gin.Context) {
		atomic.AddInt64(&fixture.requestCount, 1)
		fixture.lastAuthHeader.Store(ginContext.GetHeader("Authorization"))
		fixture.lastAcceptValue.Store(ginContext.GetHeader("Accept"))
		ginContext.Next()
	})
	fixture.server = httptest.NewServer(fixture.router)
	testingT.Cleanup(fixture.server.Close)
	return fixture
}

func (fixture *backendFixture) authorizationHeader() string {
	header, _ := fixture.lastAuthHeader.Load().(string)
	return header
}

func newClientForTest(testingT *testing.T, baseURL string, credentialStore session.Store) *apiclient.Client {
	testingT.Helper()
	client, constructErr := apiclient.NewClient(apiclient.Config{
		BaseURL:         baseURL,
		CredentialStore: credentialStore,
	})
	require.NoError(testingT, constructErr)
	return client
}

func newAuthenticatedStore(testingT *testing.T) session.Store {
	testingT.Helper()
	credentialStore := testutil.NewMemoryCredentialStore()
	require.NoError(testingT, credentialStore.Save(testBearerCredential))
	return credentialStore
}

func TestNewClientValidatesConfiguration(testingT *testing.T) {
	_, missingURLErr := apiclient.NewClient(apiclient.Config{CredentialStore: testutil.NewMemoryCredentialStore()})
	require.ErrorIs(testingT, missingURLErr, apiclient.ErrMissingBaseURL)

	_, missingStoreErr := apiclient.NewClient(apiclient.Config{BaseURL: "http://localhost:9"})
	require.ErrorIs(testingT, missingStoreErr, apiclient.ErrMissingCredentialStore)
}

func TestLoginReturnsTokenWithoutStoringIt(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.POST("/auth/login", func(ginContext *gin.Context) {
		var loginRequest model.LoginRequest
		require.NoError(testingT, ginContext.ShouldBindJSON(&loginRequest))
		require.Equal(testingT, testOperatorName, loginRequest.Username)
		require.Equal(testingT, testOperatorPassword, loginRequest.Password)
		ginContext.JSON(http.StatusOK, model.TokenResponse{AccessToken: testAccessToken, TokenType: "bearer"})
	})
	credentialStore := testutil.NewMemoryCredentialStore()
	client := newClientForTest(testingT, fixture.server.URL, credentialStore)

	token, loginErr := client.Login(context.Background(), testOperatorName, testOperatorPassword)

	require.NoError(testingT, loginErr)
	require.Equal(testingT, testAccessToken, token.AccessToken)
	storedCredential, _ := credentialStore.Load()
	require.Empty(testingT, storedCredential)
}

func TestLoginSurfacesServerDetailVerbatim(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.POST("/auth/login", func(ginContext *gin.Context) {
		ginContext.JSON(http.StatusBadRequest, gin.H{"detail": "Bad credentials"})
	})
	client := newClientForTest(testingT, fixture.server.URL, testutil.NewMemoryCredentialStore())

	_, loginErr := client.Login(context.Background(), testOperatorName, "wrong")

	var remoteErr *apiclient.RemoteError
	require.ErrorAs(testingT, loginErr, &remoteErr)
	require.Equal(testingT, http.StatusBadRequest, remoteErr.StatusCode)
	require.Equal(testingT, "Bad credentials", remoteErr.Message())
}

func TestRemoteErrorFallsBackToGenericMessageWithoutDetail(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.POST("/auth/login", func(ginContext *gin.Context) {
		ginContext.String(http.StatusInternalServerError, "<html>oops</html>")
	})
	client := newClientForTest(testingT, fixture.server.URL, testutil.NewMemoryCredentialStore())

	_, loginErr := client.Login(context.Background(), testOperatorName, testOperatorPassword)

	var remoteErr *apiclient.RemoteError
	require.ErrorAs(testingT, loginErr, &remoteErr)
	require.Equal(testingT, apiclient.GenericFailureMessage, remoteErr.Message())
}

func TestMeSendsStoredCredentialVerbatim(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.GET("/me", func(ginContext *gin.Context) {
		ginContext.JSON(http.StatusOK, model.Identity{Subject: testOperatorName, IsAdmin: true})
	})
	client := newClientForTest(testingT, fixture.server.URL, newAuthenticatedStore(testingT))

	identity, meErr := client.Me(context.Background())

	require.NoError(testingT, meErr)
	require.Equal(testingT, testOperatorName, identity.Subject)
	require.Equal(testingT, testBearerCredential, fixture.authorizationHeader())
	acceptValue, _ := fixture.lastAcceptValue.Load().(string)
	require.Equal(testingT, "application/json", acceptValue)
}

func TestAuthenticatedCallWithoutCredentialNeverHitsTheNetwork(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	client := newClientForTest(testingT, fixture.server.URL, testutil.NewMemoryCredentialStore())

	_, listErr := client.ListConflicts(context.Background(), model.ConflictStatusOpen)

	var authErr *apiclient.AuthExpiredError
	require.ErrorAs(testingT, listErr, &authErr)
	require.Equal(testingT, "/ui/conflicts", authErr.Next)
	require.Zero(testingT, atomic.LoadInt64(&fixture.requestCount))
}

func TestUnauthorizedResponseClearsCredentialAndCarriesReturnPath(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.GET("/conflicts/:id", func(ginContext *gin.Context) {
		ginContext.JSON(http.StatusUnauthorized, gin.H{"detail": "Token expired"})
	})
	credentialStore := newAuthenticatedStore(testingT)
	client := newClientForTest(testingT, fixture.server.URL, credentialStore)

	_, detailErr := client.ConflictDetail(context.Background(), 77)

	var authErr *apiclient.AuthExpiredError
	require.ErrorAs(testingT, detailErr, &authErr)
	require.Equal(testingT, "/ui/conflicts/77", authErr.Next)
	storedCredential, _ := credentialStore.Load()
	require.Empty(testingT, storedCredential)
}

func TestListConflictsPassesStatusFilter(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.GET("/conflicts", func(ginContext *gin.Context) {
		require.Equal(testingT, model.ConflictStatusOpen, ginContext.Query("status"))
		ginContext.JSON(http.StatusOK, []model.Conflict{
			{ConflictID: 1, TableName: testConflictTableName, Status: model.ConflictStatusOpen},
		})
	})
	client := newClientForTest(testingT, fixture.server.URL, newAuthenticatedStore(testingT))

	conflicts, listErr := client.ListConflicts(context.Background(), model.ConflictStatusOpen)

	require.NoError(testingT, listErr)
	require.Len(testingT, conflicts, 1)
	require.True(testingT, conflicts[0].IsOpen())
}

func TestConflictDetailPublicUsesReadTokenInsteadOfCredential(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.GET("/conflicts/:id/public", func(ginContext *gin.Context) {
		require.Equal(testingT, testPublicReadToken, ginContext.Query("t"))
		ginContext.JSON(http.StatusOK, model.ConflictDetail{
			Conflict: model.Conflict{ConflictID: 5, Status: model.ConflictStatusOpen},
		})
	})
	client := newClientForTest(testingT, fixture.server.URL, newAuthenticatedStore(testingT))

	detail, detailErr := client.ConflictDetailPublic(context.Background(), 5, testPublicReadToken)

	require.NoError(testingT, detailErr)
	require.Equal(testingT, int64(5), detail.ConflictID)
	require.Empty(testingT, fixture.authorizationHeader())
}

func TestResolveWinnerSendsWinnerReplicaAsQueryParameter(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.POST("/conflicts/:id/resolve", func(ginContext *gin.Context) {
		require.Equal(testingT, "postgres", ginContext.Query("winner_db"))
		ginContext.JSON(http.StatusOK, model.ResolutionResult{OK: true, Resolved: 1, WinnerDB: "postgres"})
	})
	client := newClientForTest(testingT, fixture.server.URL, newAuthenticatedStore(testingT))

	result, resolveErr := client.ResolveWinner(context.Background(), 9, model.ReplicaPostgres)

	require.NoError(testingT, resolveErr)
	require.True(testingT, result.OK)
}

func TestResolveCustomSendsRowOverrideAsBody(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.POST("/conflicts/:id/resolve/custom", func(ginContext *gin.Context) {
		var rowOverride map[string]any
		require.NoError(testingT, ginContext.ShouldBindJSON(&rowOverride))
		require.Equal(testingT, "widget", rowOverride["product_name"])
		ginContext.JSON(http.StatusOK, model.ResolutionResult{OK: true, Resolved: 1})
	})
	client := newClientForTest(testingT, fixture.server.URL, newAuthenticatedStore(testingT))

	result, resolveErr := client.ResolveCustom(context.Background(), 9, map[string]any{"product_name": "widget"})

	require.NoError(testingT, resolveErr)
	require.True(testingT, result.OK)
}

func TestOverviewPassesLimitAndDecodesPayload(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.GET("/dashboard/overview", func(ginContext *gin.Context) {
		require.Equal(testingT, "8", ginContext.Query("limit"))
		ginContext.JSON(http.StatusOK, model.OverviewResponse{
			Conflicts:           model.ConflictSnapshot{OpenCount: 3},
			PendingChangesTotal: 12,
		})
	})
	client := newClientForTest(testingT, fixture.server.URL, newAuthenticatedStore(testingT))

	overview, overviewErr := client.Overview(context.Background(), 8)

	require.NoError(testingT, overviewErr)
	require.Equal(testingT, int64(3), overview.Conflicts.OpenCount)
	require.Equal(testingT, int64(12), overview.PendingChangesTotal)
}

func TestRunSQLPostsRequestBody(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.POST("/queries/run", func(ginContext *gin.Context) {
		var runRequest model.SQLRunRequest
		require.NoError(testingT, ginContext.ShouldBindJSON(&runRequest))
		require.Equal(testingT, "SELECT 1", runRequest.SQL)
		ginContext.JSON(http.StatusOK, model.SQLRunResult{DB: runRequest.DB, SQL: runRequest.SQL, RowCount: 1})
	})
	client := newClientForTest(testingT, fixture.server.URL, newAuthenticatedStore(testingT))

	result, runErr := client.RunSQL(context.Background(), model.SQLRunRequest{DB: "mysql", SQL: "SELECT 1", Limit: 100})

	require.NoError(testingT, runErr)
	require.Equal(testingT, int64(1), result.RowCount)
}

func TestTransportFailureYieldsTransportError(testingT *testing.T) {
	failingTransport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client, constructErr := apiclient.NewClient(apiclient.Config{
		BaseURL:         "http://localhost:9",
		HTTPClient:      &http.Client{Transport: failingTransport},
		CredentialStore: newAuthenticatedStore(testingT),
	})
	require.NoError(testingT, constructErr)

	_, meErr := client.Me(context.Background())

	var transportErr *apiclient.TransportError
	require.ErrorAs(testingT, meErr, &transportErr)
	require.False(testingT, apiclient.IsAuthExpired(meErr))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (roundTrip roundTripFunc) RoundTrip(request *http.Request) (*http.Response, error) {
	return roundTrip(request)
}

func TestSuccessSettlingAfterCredentialClearIsDiscarded(testingT *testing.T) {
	credentialStore := newAuthenticatedStore(testingT)
	// The credential is cleared while the request is in flight, as a concurrent
	// 401 on another call would do.
	clearingTransport := roundTripFunc(func(request *http.Request) (*http.Response, error) {
		require.NoError(testingT, credentialStore.Clear())
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"sub":"operator","is_admin":true}`)),
			Request:    request,
		}, nil
	})
	client, constructErr := apiclient.NewClient(apiclient.Config{
		BaseURL:         "http://localhost:9",
		HTTPClient:      &http.Client{Transport: clearingTransport},
		CredentialStore: credentialStore,
	})
	require.NoError(testingT, constructErr)

	identity, meErr := client.Me(context.Background())

	var authErr *apiclient.AuthExpiredError
	require.ErrorAs(testingT, meErr, &authErr)
	require.Equal(testingT, session.DefaultNextTarget, authErr.Next)
	require.Empty(testingT, identity.Subject)
}

func TestLoginThenGuardedListConflictsEndToEnd(testingT *testing.T) {
	fixture := newBackendFixture(testingT)
	fixture.router.POST("/auth/login", func(ginContext *gin.Context) {
		ginContext.JSON(http.StatusOK, model.TokenResponse{AccessToken: testAccessToken, TokenType: "bearer"})
	})
	fixture.router.GET("/conflicts", func(ginContext *gin.Context) {
		if ginContext.GetHeader("Authorization") != testBearerCredential {
			ginContext.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}
		ginContext.JSON(http.StatusOK, []model.Conflict{{ConflictID: 1, Status: model.ConflictStatusOpen}})
	})
	credentialStore := testutil.NewMemoryCredentialStore()
	guard := session.NewGuard(credentialStore, nil)
	client := newClientForTest(testingT, fixture.server.URL, credentialStore)

	token, loginErr := client.Login(context.Background(), testOperatorName, testOperatorPassword)
	require.NoError(testingT, loginErr)
	_, establishErr := guard.Establish(token.AccessToken)
	require.NoError(testingT, establishErr)

	conflicts, listErr := client.ListConflicts(context.Background(), model.ConflictStatusOpen)
	require.NoError(testingT, listErr)
	require.Len(testingT, conflicts, 1)

	guard.Clear()
	_, redirect := guard.RequireSession(session.ViewPathConflicts)
	require.NotNil(testingT, redirect)
	require.Equal(testingT, "/ui/login?next=%2Fui%2Fconflicts", redirect.Location)
}
