// Package resolution drives the per-conflict resolution protocol: one entry
// point consuming a tagged union of competing strategies, with serialized
// requests per conflict.
package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/apiclient"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/render"
)

const (
	manualPayloadIndent = "  "

	winnerResolvedMessageFormat = "conflict #%d resolved with %s data"
	manualPatchedMessageFormat  = "conflict #%d manually patched"
	invalidPatchMessage         = "manual patch is not a valid JSON object"

	logEventResolveConflict = "resolve_conflict"
	logEventRefreshAfter    = "refresh_after_resolution"
	logFieldConflictID      = "conflict_id"
	logFieldStrategy        = "strategy"

	errorMessageMissingResolver = "resolution: missing resolver"
	errorMessageInFlight        = "resolution: a resolution request for this conflict is already in flight"
	errorMessageUnknownStrategy = "resolution: unknown strategy"

	strategyLabelWinner      = "winner"
	strategyLabelManualPatch = "manual_patch"
)

var (
	// ErrMissingResolver indicates the controller was configured without a backend resolver.
	ErrMissingResolver = errors.New(errorMessageMissingResolver)
	// ErrResolutionInFlight rejects a duplicate resolution request for a
	// conflict whose previous request has not settled yet.
	ErrResolutionInFlight = errors.New(errorMessageInFlight)
	// ErrUnknownStrategy rejects a strategy type the controller does not know.
	ErrUnknownStrategy = errors.New(errorMessageUnknownStrategy)
)

// Strategy is one way of resolving a conflict.
type Strategy interface {
	Label() string
}

// WinnerStrategy resolves a conflict by designating one replica's row version
// as authoritative.
type WinnerStrategy struct {
	Replica model.ReplicaName
}

// Label identifies the strategy in logs.
func (WinnerStrategy) Label() string { return strategyLabelWinner }

// ManualPatchStrategy resolves a conflict with an operator-edited JSON row.
type ManualPatchStrategy struct {
	Payload string
}

// Label identifies the strategy in logs.
func (ManualPatchStrategy) Label() string { return strategyLabelManualPatch }

func (strategy ManualPatchStrategy) parsePayload() (map[string]any, error) {
	var rowOverride map[string]any
	decoder := json.NewDecoder(strings.NewReader(strategy.Payload))
	decoder.UseNumber()
	if decodeErr := decoder.Decode(&rowOverride); decodeErr != nil || rowOverride == nil {
		return nil, &apiclient.ValidationError{Message: invalidPatchMessage}
	}
	return rowOverride, nil
}

// Resolver is the slice of the API client the controller consumes.
type Resolver interface {
	ResolveWinner(ctx context.Context, conflictID int64, winner model.ReplicaName) (model.ResolutionResult, error)
	ResolveCustom(ctx context.Context, conflictID int64, rowOverride map[string]any) (model.ResolutionResult, error)
}

// OverviewRefresher re-reads the dashboard after a successful resolution so
// the resolved conflict leaves the open list.
type OverviewRefresher interface {
	RefreshOverview(ctx context.Context) error
}

// Config captures the controller dependencies.
type Config struct {
	Resolver  Resolver
	Refresher OverviewRefresher
	Notifier  render.Notifier
	Logger    *zap.Logger
}

// Controller serializes resolution requests per conflict and applies exactly
// one strategy per request.
type Controller struct {
	resolver  Resolver
	refresher OverviewRefresher
	notifier  render.Notifier
	logger    *zap.Logger

	inFlightMutex     sync.Mutex
	inFlightConflicts map[int64]struct{}
}

// NewController constructs a Controller from the provided configuration.
func NewController(configuration Config) (*Controller, error) {
	if configuration.Resolver == nil {
		return nil, ErrMissingResolver
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		resolver:          configuration.Resolver,
		refresher:         configuration.Refresher,
		notifier:          configuration.Notifier,
		logger:            logger,
		inFlightConflicts: make(map[int64]struct{}),
	}, nil
}

// Resolve applies one resolution strategy to one conflict. At most one
// resolution request per conflict is in flight at a time; a re-entrant call
// returns ErrResolutionInFlight without touching the network. A manual patch
// that fails local JSON validation is likewise never transmitted.
func (controller *Controller) Resolve(ctx context.Context, conflictID int64, strategy Strategy) error {
	if !controller.acquireConflict(conflictID) {
		return ErrResolutionInFlight
	}
	defer controller.releaseConflict(conflictID)

	controller.logger.Info(logEventResolveConflict,
		zap.Int64(logFieldConflictID, conflictID),
		zap.String(logFieldStrategy, strategy.Label()))

	successMessage := ""
	var resolveErr error
	switch typedStrategy := strategy.(type) {
	case WinnerStrategy:
		_, resolveErr = controller.resolver.ResolveWinner(ctx, conflictID, typedStrategy.Replica)
		successMessage = fmt.Sprintf(winnerResolvedMessageFormat, conflictID, typedStrategy.Replica.Upper())
	case ManualPatchStrategy:
		rowOverride, parseErr := typedStrategy.parsePayload()
		if parseErr != nil {
			return parseErr
		}
		_, resolveErr = controller.resolver.ResolveCustom(ctx, conflictID, rowOverride)
		successMessage = fmt.Sprintf(manualPatchedMessageFormat, conflictID)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownStrategy, strategy)
	}

	if resolveErr != nil {
		// The conflict stays OPEN; the caller surfaces the failure.
		return resolveErr
	}

	if controller.notifier != nil {
		controller.notifier.Notify(successMessage, render.SeveritySuccess)
	}
	if controller.refresher != nil {
		if refreshErr := controller.refresher.RefreshOverview(ctx); refreshErr != nil {
			controller.logger.Warn(logEventRefreshAfter,
				zap.Int64(logFieldConflictID, conflictID),
				zap.Error(refreshErr))
		}
	}
	return nil
}

func (controller *Controller) acquireConflict(conflictID int64) bool {
	controller.inFlightMutex.Lock()
	defer controller.inFlightMutex.Unlock()
	if _, alreadyInFlight := controller.inFlightConflicts[conflictID]; alreadyInFlight {
		return false
	}
	controller.inFlightConflicts[conflictID] = struct{}{}
	return true
}

func (controller *Controller) releaseConflict(conflictID int64) {
	controller.inFlightMutex.Lock()
	defer controller.inFlightMutex.Unlock()
	delete(controller.inFlightConflicts, conflictID)
}

// SeedManualPayload pretty-prints the row an operator starts editing from: the
// conflict's source row data, falling back to the target row data.
func SeedManualPayload(detail model.ConflictDetail) string {
	seedDocument := detail.SourceRowData
	if len(seedDocument) == 0 {
		seedDocument = detail.TargetRowData
	}
	if seedDocument == nil {
		seedDocument = map[string]any{}
	}
	encoded, encodeErr := json.MarshalIndent(seedDocument, "", manualPayloadIndent)
	if encodeErr != nil {
		return "{}"
	}
	return string(encoded)
}

// BuildDetailView derives the resolution visibility of a conflict detail.
// Resolution controls appear only for an authenticated view of an OPEN
// conflict; the public token-based view never exposes them.
func BuildDetailView(detail model.ConflictDetail, credentialPresent bool, publicView bool) render.ConflictDetailView {
	return render.ConflictDetailView{
		Detail:     detail,
		PublicView: publicView,
		CanResolve: credentialPresent && !publicView && detail.IsOpen(),
	}
}
