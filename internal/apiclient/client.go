package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/session"
)

const (
	headerNameAccept        = "Accept"
	headerNameContentType   = "Content-Type"
	headerNameAuthorization = "Authorization"
	mimeTypeJSON            = "application/json"

	endpointLogin           = "/auth/login"
	endpointRegister        = "/auth/register"
	endpointMe              = "/me"
	endpointConflicts       = "/conflicts"
	endpointConflictByID    = "/conflicts/%d"
	endpointConflictPublic  = "/conflicts/%d/public"
	endpointResolveWinner   = "/conflicts/%d/resolve"
	endpointResolveCustom   = "/conflicts/%d/resolve/custom"
	endpointOverview        = "/dashboard/overview"
	endpointDailyReport     = "/report/daily"
	endpointProducts        = "/products"
	endpointTopCustomers    = "/queries/top-customers"
	endpointRunQuery        = "/queries/run"
	queryParameterStatus    = "status"
	queryParameterWinnerDB  = "winner_db"
	queryParameterLimit     = "limit"
	queryParameterDays      = "days"
	queryParameterDB        = "db"
	queryParameterReadToken = "t"

	defaultRequestTimeout = 15 * time.Second

	logEventRequestFailed     = "sync_api_request_failed"
	logEventCredentialExpired = "sync_api_credential_expired"
	logFieldMethod            = "method"
	logFieldPath              = "path"
	logFieldStatus            = "status"

	errorMessageMissingBaseURL  = "apiclient: missing base url"
	errorMessageMissingStore    = "apiclient: missing credential store"
	errorMessageEncodeBody      = "encode request body"
	errorMessageBuildRequest    = "build request"
	errorMessageExecuteRequest  = "execute request"
	errorMessageReadBody        = "read response body"
	errorMessageDecodeBody      = "decode response body"
)

var (
	// ErrMissingBaseURL indicates the client was configured without a backend base URL.
	ErrMissingBaseURL = errors.New(errorMessageMissingBaseURL)
	// ErrMissingCredentialStore indicates the client was configured without a credential store.
	ErrMissingCredentialStore = errors.New(errorMessageMissingStore)
)

// HTTPClient executes outbound HTTP requests.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Config captures the dependencies of the sync backend client.
type Config struct {
	BaseURL         string
	HTTPClient      HTTPClient
	CredentialStore session.Store
	Logger          *zap.Logger
}

// Client is the typed wrapper over the fixed HTTP/JSON API of the sync
// backend. Every authenticated call re-reads the credential from the store;
// the credential is never cached across calls.
type Client struct {
	baseURL         string
	httpClient      HTTPClient
	credentialStore session.Store
	logger          *zap.Logger
}

// NewClient constructs a Client from the provided configuration.
func NewClient(configuration Config) (*Client, error) {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if trimmedBaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if configuration.CredentialStore == nil {
		return nil, ErrMissingCredentialStore
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:         trimmedBaseURL,
		httpClient:      httpClient,
		credentialStore: configuration.CredentialStore,
		logger:          logger,
	}, nil
}

type errorEnvelope struct {
	Detail string `json:"detail"`
}

type requestSpec struct {
	method        string
	path          string
	query         url.Values
	body          any
	authenticated bool
	// viewPath is preserved as the post-login return target when the
	// credential turns out to be expired mid-request.
	viewPath string
}

func (client *Client) execute(ctx context.Context, spec requestSpec, responseTarget any) error {
	credential := ""
	if spec.authenticated {
		storedCredential, loadErr := client.credentialStore.Load()
		if loadErr != nil || storedCredential == "" {
			return &AuthExpiredError{Next: spec.viewPath}
		}
		credential = storedCredential
	}

	requestURL := client.baseURL + spec.path
	if len(spec.query) > 0 {
		requestURL += "?" + spec.query.Encode()
	}

	var requestBody io.Reader
	if spec.body != nil {
		encodedBody, encodeErr := json.Marshal(spec.body)
		if encodeErr != nil {
			return &TransportError{Operation: errorMessageEncodeBody, Err: encodeErr}
		}
		requestBody = bytes.NewReader(encodedBody)
	}

	request, requestErr := http.NewRequestWithContext(ctx, spec.method, requestURL, requestBody)
	if requestErr != nil {
		return &TransportError{Operation: errorMessageBuildRequest, Err: requestErr}
	}
	request.Header.Set(headerNameAccept, mimeTypeJSON)
	if spec.body != nil {
		request.Header.Set(headerNameContentType, mimeTypeJSON)
	}
	if credential != "" {
		request.Header.Set(headerNameAuthorization, credential)
	}

	response, responseErr := client.httpClient.Do(request)
	if responseErr != nil {
		client.logger.Warn(logEventRequestFailed,
			zap.String(logFieldMethod, spec.method),
			zap.String(logFieldPath, spec.path),
			zap.Error(responseErr))
		return &TransportError{Operation: errorMessageExecuteRequest, Err: responseErr}
	}
	defer func() {
		_ = response.Body.Close()
	}()

	responseBytes, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return &TransportError{Operation: errorMessageReadBody, Err: readErr}
	}

	// Expired credentials short-circuit before any other error propagation.
	if response.StatusCode == http.StatusUnauthorized {
		client.logger.Warn(logEventCredentialExpired,
			zap.String(logFieldMethod, spec.method),
			zap.String(logFieldPath, spec.path))
		_ = client.credentialStore.Clear()
		return &AuthExpiredError{Next: spec.viewPath}
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		// Error detail rides in the body, so the body is parsed even on failure.
		var envelope errorEnvelope
		_ = json.Unmarshal(responseBytes, &envelope)
		client.logger.Warn(logEventRequestFailed,
			zap.String(logFieldMethod, spec.method),
			zap.String(logFieldPath, spec.path),
			zap.Int(logFieldStatus, response.StatusCode))
		return &RemoteError{StatusCode: response.StatusCode, Detail: envelope.Detail}
	}

	// A success that settles after the credential was cleared by a concurrent
	// call is discarded; its payload must never reach the caller's view state.
	if spec.authenticated {
		if currentCredential, loadErr := client.credentialStore.Load(); loadErr != nil || currentCredential == "" {
			client.logger.Warn(logEventCredentialExpired,
				zap.String(logFieldMethod, spec.method),
				zap.String(logFieldPath, spec.path))
			return &AuthExpiredError{Next: spec.viewPath}
		}
	}

	if responseTarget == nil {
		return nil
	}
	if decodeErr := json.Unmarshal(responseBytes, responseTarget); decodeErr != nil {
		return &TransportError{Operation: errorMessageDecodeBody, Err: decodeErr}
	}
	return nil
}

// Login obtains an access token for the provided operator credentials. The
// token is returned, not stored; credential persistence belongs to the session
// guard.
func (client *Client) Login(ctx context.Context, username string, password string) (model.TokenResponse, error) {
	var token model.TokenResponse
	loginErr := client.execute(ctx, requestSpec{
		method:   http.MethodPost,
		path:     endpointLogin,
		body:     model.LoginRequest{Username: username, Password: password},
		viewPath: session.ViewPathLogin,
	}, &token)
	return token, loginErr
}

// Register creates an operator account and returns its first access token.
func (client *Client) Register(ctx context.Context, username string, password string, registrationCode string) (model.TokenResponse, error) {
	var token model.TokenResponse
	registerErr := client.execute(ctx, requestSpec{
		method: http.MethodPost,
		path:   endpointRegister,
		body: model.RegisterRequest{
			Username:         username,
			Password:         password,
			RegistrationCode: registrationCode,
		},
		viewPath: session.ViewPathRegister,
	}, &token)
	return token, registerErr
}

// Me validates the stored credential against the identity endpoint.
func (client *Client) Me(ctx context.Context) (model.Identity, error) {
	var identity model.Identity
	meErr := client.execute(ctx, requestSpec{
		method:        http.MethodGet,
		path:          endpointMe,
		authenticated: true,
		viewPath:      session.DefaultNextTarget,
	}, &identity)
	return identity, meErr
}

// ListConflicts returns the conflicts carrying the requested status.
func (client *Client) ListConflicts(ctx context.Context, status string) ([]model.Conflict, error) {
	query := url.Values{}
	query.Set(queryParameterStatus, status)
	var conflicts []model.Conflict
	listErr := client.execute(ctx, requestSpec{
		method:        http.MethodGet,
		path:          endpointConflicts,
		query:         query,
		authenticated: true,
		viewPath:      session.ViewPathConflicts,
	}, &conflicts)
	return conflicts, listErr
}

// ConflictDetail returns the admin view of one conflict including both row payloads.
func (client *Client) ConflictDetail(ctx context.Context, conflictID int64) (model.ConflictDetail, error) {
	var detail model.ConflictDetail
	detailErr := client.execute(ctx, requestSpec{
		method:        http.MethodGet,
		path:          fmt.Sprintf(endpointConflictByID, conflictID),
		authenticated: true,
		viewPath:      session.ConflictDetailPath(conflictID),
	}, &detail)
	return detail, detailErr
}

// ConflictDetailPublic returns the read-only view of one conflict reachable
// through an emailed token. No credential is attached.
func (client *Client) ConflictDetailPublic(ctx context.Context, conflictID int64, readToken string) (model.ConflictDetail, error) {
	query := url.Values{}
	query.Set(queryParameterReadToken, readToken)
	var detail model.ConflictDetail
	detailErr := client.execute(ctx, requestSpec{
		method:   http.MethodGet,
		path:     fmt.Sprintf(endpointConflictPublic, conflictID),
		query:    query,
		viewPath: session.ConflictDetailPath(conflictID),
	}, &detail)
	return detail, detailErr
}

// ResolveWinner resolves a conflict by designating one replica as authoritative.
func (client *Client) ResolveWinner(ctx context.Context, conflictID int64, winner model.ReplicaName) (model.ResolutionResult, error) {
	query := url.Values{}
	query.Set(queryParameterWinnerDB, string(winner))
	var result model.ResolutionResult
	resolveErr := client.execute(ctx, requestSpec{
		method:        http.MethodPost,
		path:          fmt.Sprintf(endpointResolveWinner, conflictID),
		query:         query,
		authenticated: true,
		viewPath:      session.ConflictDetailPath(conflictID),
	}, &result)
	return result, resolveErr
}

// ResolveCustom resolves a conflict with an operator-edited row payload. The
// payload must already have passed local JSON validation.
func (client *Client) ResolveCustom(ctx context.Context, conflictID int64, rowOverride map[string]any) (model.ResolutionResult, error) {
	var result model.ResolutionResult
	resolveErr := client.execute(ctx, requestSpec{
		method:        http.MethodPost,
		path:          fmt.Sprintf(endpointResolveCustom, conflictID),
		body:          rowOverride,
		authenticated: true,
		viewPath:      session.ConflictDetailPath(conflictID),
	}, &result)
	return result, resolveErr
}

// Overview returns the combined replica stats, product matrix and conflict snapshot.
func (client *Client) Overview(ctx context.Context, limit int) (model.OverviewResponse, error) {
	query := url.Values{}
	query.Set(queryParameterLimit, strconv.Itoa(limit))
	var overview model.OverviewResponse
	overviewErr := client.execute(ctx, requestSpec{
		method:        http.MethodGet,
		path:          endpointOverview,
		query:         query,
		authenticated: true,
		viewPath:      session.ViewPathLanding,
	}, &overview)
	return overview, overviewErr
}

// DailyReport returns the date-keyed change and conflict series plus the table
// volume snapshot.
func (client *Client) DailyReport(ctx context.Context, days int) (model.DailyReportResponse, error) {
	query := url.Values{}
	query.Set(queryParameterDays, strconv.Itoa(days))
	var report model.DailyReportResponse
	reportErr := client.execute(ctx, requestSpec{
		method:        http.MethodGet,
		path:          endpointDailyReport,
		query:         query,
		authenticated: true,
		viewPath:      session.ViewPathReport,
	}, &report)
	return report, reportErr
}

// ListProducts returns the product rows of one replica.
func (client *Client) ListProducts(ctx context.Context, replica model.ReplicaName) ([]model.Product, error) {
	query := url.Values{}
	query.Set(queryParameterDB, string(replica))
	var products []model.Product
	listErr := client.execute(ctx, requestSpec{
		method:        http.MethodGet,
		path:          endpointProducts,
		query:         query,
		authenticated: true,
		viewPath:      session.ViewPathData,
	}, &products)
	return products, listErr
}

// UpsertProduct creates or updates a product row on one replica; the sync
// engine propagates it to the others.
func (client *Client) UpsertProduct(ctx context.Context, replica model.ReplicaName, product model.ProductInput) (model.Product, error) {
	query := url.Values{}
	query.Set(queryParameterDB, string(replica))
	var saved model.Product
	saveErr := client.execute(ctx, requestSpec{
		method:        http.MethodPost,
		path:          endpointProducts,
		query:         query,
		body:          product,
		authenticated: true,
		viewPath:      session.ViewPathData,
	}, &saved)
	return saved, saveErr
}

// TopCustomers runs the canned top-customers analytic query on one replica.
func (client *Client) TopCustomers(ctx context.Context, replica model.ReplicaName, days int, limit int) (model.TopCustomersResult, error) {
	query := url.Values{}
	query.Set(queryParameterDB, string(replica))
	query.Set(queryParameterDays, strconv.Itoa(days))
	query.Set(queryParameterLimit, strconv.Itoa(limit))
	var result model.TopCustomersResult
	queryErr := client.execute(ctx, requestSpec{
		method:        http.MethodGet,
		path:          endpointTopCustomers,
		query:         query,
		authenticated: true,
		viewPath:      session.ViewPathQuery,
	}, &result)
	return result, queryErr
}

// RunSQL executes an ad-hoc read-only SQL statement on one replica.
func (client *Client) RunSQL(ctx context.Context, request model.SQLRunRequest) (model.SQLRunResult, error) {
	var result model.SQLRunResult
	runErr := client.execute(ctx, requestSpec{
		method:        http.MethodPost,
		path:          endpointRunQuery,
		body:          request,
		authenticated: true,
		viewPath:      session.ViewPathQuery,
	}, &result)
	return result, runErr
}
