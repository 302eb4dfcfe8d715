package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
)

// View paths mirror the routes of the operator console; a redirect target is
// always expressed as one of these plus a query string.
const (
	ViewPathLanding        = "/ui"
	ViewPathLogin          = "/ui/login"
	ViewPathRegister       = "/ui/register"
	ViewPathConflicts      = "/ui/conflicts"
	ViewPathData           = "/ui/data"
	ViewPathReport         = "/ui/report"
	ViewPathQuery          = "/ui/query"
	ConflictDetailViewPath = "/ui/conflicts/%d"

	// DefaultNextTarget is where a successful login lands when no explicit
	// return path was requested.
	DefaultNextTarget = ViewPathConflicts

	queryParameterNext = "next"

	credentialSchemeBearer = "Bearer"

	logEventCredentialProbe       = "credential_probe"
	logEventCredentialEstablished = "credential_established"
	logEventCredentialCleared     = "credential_cleared"

	errorMessageEstablishCredential = "session: establish credential"
)

// Redirect instructs the caller to abandon the current view and navigate to
// Location instead of proceeding.
type Redirect struct {
	Location string
}

// NewLoginRedirect builds the login redirect carrying the original path as the
// next target.
func NewLoginRedirect(nextTarget string) *Redirect {
	trimmedTarget := strings.TrimSpace(nextTarget)
	if trimmedTarget == "" {
		trimmedTarget = DefaultNextTarget
	}
	return &Redirect{
		Location: ViewPathLogin + "?" + queryParameterNext + "=" + url.QueryEscape(trimmedTarget),
	}
}

// IdentityProber validates a stored credential against the backend identity
// endpoint.
type IdentityProber interface {
	Me(ctx context.Context) (model.Identity, error)
}

// Guard owns the bearer credential lifecycle and gates every protected view.
type Guard struct {
	credentialStore Store
	logger          *zap.Logger
}

// NewGuard constructs a Guard over the provided credential store.
func NewGuard(credentialStore Store, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{credentialStore: credentialStore, logger: logger}
}

// RequireSession returns the stored credential for the requested view, or a
// login redirect carrying the view path as the next target. Callers must halt
// all further work on the view when a redirect is returned.
func (guard *Guard) RequireSession(currentPath string) (string, *Redirect) {
	credential, loadErr := guard.credentialStore.Load()
	if loadErr != nil || credential == "" {
		return "", NewLoginRedirect(currentPath)
	}
	return credential, nil
}

// Validate probes the identity endpoint with the stored credential. A
// non-success response clears the credential and yields a login redirect: the
// credential is treated as expired, not as an error.
func (guard *Guard) Validate(ctx context.Context, prober IdentityProber, currentPath string) (model.Identity, *Redirect) {
	if _, redirect := guard.RequireSession(currentPath); redirect != nil {
		return model.Identity{}, redirect
	}
	identity, probeErr := prober.Me(ctx)
	if probeErr != nil {
		guard.logger.Warn(logEventCredentialProbe, zap.Error(probeErr))
		guard.Clear()
		return model.Identity{}, NewLoginRedirect(currentPath)
	}
	return identity, nil
}

// Establish wraps a freshly issued access token as a bearer credential and
// persists it. The wrapped credential is returned for one-time display.
func (guard *Guard) Establish(accessToken string) (string, error) {
	trimmedToken := strings.TrimSpace(accessToken)
	if trimmedToken == "" {
		return "", fmt.Errorf("%s: empty access token", errorMessageEstablishCredential)
	}
	credential := credentialSchemeBearer + " " + trimmedToken
	if saveErr := guard.credentialStore.Save(credential); saveErr != nil {
		return "", fmt.Errorf("%s: %w", errorMessageEstablishCredential, saveErr)
	}
	guard.logger.Info(logEventCredentialEstablished)
	return credential, nil
}

// HasCredential reports whether a credential is currently stored.
func (guard *Guard) HasCredential() bool {
	credential, loadErr := guard.credentialStore.Load()
	return loadErr == nil && credential != ""
}

// Clear removes the stored credential. It is the logout operation and the
// reaction to any expired-credential signal.
func (guard *Guard) Clear() {
	if clearErr := guard.credentialStore.Clear(); clearErr != nil {
		guard.logger.Warn(logEventCredentialCleared, zap.Error(clearErr))
		return
	}
	guard.logger.Info(logEventCredentialCleared)
}

// ConflictDetailPath renders the view path of one conflict's detail view.
func ConflictDetailPath(conflictID int64) string {
	return fmt.Sprintf(ConflictDetailViewPath, conflictID)
}
