package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/apiclient"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/render"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/resolution"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/session"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/task"
)

const (
	flagNameUsername         = "username"
	flagNamePassword         = "password"
	flagNameRegistrationCode = "registration-code"
	flagNameStatus           = "status"
	flagNameWatch            = "watch"
	flagNameReadToken        = "token"
	flagNameWinnerReplica    = "winner"
	flagNameManualPatch      = "patch"
	flagNameReplica          = "db"
	flagNameProductID        = "id"
	flagNameProductName      = "name"
	flagNameProductPrice     = "price"
	flagNameProductStock     = "stock"
	flagNameDays             = "days"
	flagNameLimit            = "limit"

	minimumSQLRowLimit = 1
	maximumSQLRowLimit = 1000
	defaultSQLRowLimit = 200

	defaultTopCustomersDays  = 30
	defaultTopCustomersLimit = 10

	signedInMessageFormat       = "signed in as %s"
	registeredMessageFormat     = "registered %s and signed in"
	signedOutMessage            = "signed out"
	identityMessageFormat       = "%s (admin: %t)"
	productSavedMessageFormat   = "product %s saved on %s, row version %d"
	credentialExpiredHintFormat = "credential expired or missing, sign in with 'console login' (return path %s)"

	errorMessageInvalidConflictID = "conflict id must be a positive integer"
	errorMessageWinnerOrPatch     = "exactly one of --winner or --patch is required"
	errorMessageEmptyProductName  = "product name must not be empty"
	errorMessageNegativePrice     = "price must not be negative"
	errorMessageNegativeStock     = "stock must not be negative"
	errorMessageEmptySQL          = "sql statement must not be empty"
	errorMessageEmptyUsername     = "username must not be empty"
	errorMessageEmptyPassword     = "password must not be empty"
	errorMessageWatchInterrupted  = "watch stopped"
)

// describeSessionError turns an expired-credential error into an operator hint
// carrying the post-login return path. Other errors pass through untouched.
func describeSessionError(err error) error {
	var authErr *apiclient.AuthExpiredError
	if errors.As(err, &authErr) {
		return fmt.Errorf(credentialExpiredHintFormat, session.NewLoginRedirect(authErr.Next).Location)
	}
	return err
}

func redirectToError(redirect *session.Redirect) error {
	return fmt.Errorf(credentialExpiredHintFormat, redirect.Location)
}

func (application *ConsoleApplication) newLoginCommand() *cobra.Command {
	loginCommand := &cobra.Command{
		Use:   "login",
		Short: "Obtain and store a bearer credential",
		RunE: func(command *cobra.Command, _ []string) error {
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			username, _ := command.Flags().GetString(flagNameUsername)
			password, _ := command.Flags().GetString(flagNamePassword)
			if credentialsErr := validateCredentials(username, password); credentialsErr != nil {
				return credentialsErr
			}

			token, loginErr := dependencies.client.Login(command.Context(), username, password)
			if loginErr != nil {
				return describeSessionError(loginErr)
			}
			if _, establishErr := dependencies.guard.Establish(token.AccessToken); establishErr != nil {
				return establishErr
			}
			dependencies.renderer.Notify(fmt.Sprintf(signedInMessageFormat, username), render.SeveritySuccess)
			return nil
		},
	}
	loginCommand.Flags().String(flagNameUsername, "", "operator username")
	loginCommand.Flags().String(flagNamePassword, "", "operator password")
	return loginCommand
}

func (application *ConsoleApplication) newRegisterCommand() *cobra.Command {
	registerCommand := &cobra.Command{
		Use:   "register",
		Short: "Create an operator account and store its first credential",
		RunE: func(command *cobra.Command, _ []string) error {
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			username, _ := command.Flags().GetString(flagNameUsername)
			password, _ := command.Flags().GetString(flagNamePassword)
			registrationCode, _ := command.Flags().GetString(flagNameRegistrationCode)
			if credentialsErr := validateCredentials(username, password); credentialsErr != nil {
				return credentialsErr
			}

			token, registerErr := dependencies.client.Register(command.Context(), username, password, registrationCode)
			if registerErr != nil {
				return describeSessionError(registerErr)
			}
			if _, establishErr := dependencies.guard.Establish(token.AccessToken); establishErr != nil {
				return establishErr
			}
			dependencies.renderer.Notify(fmt.Sprintf(registeredMessageFormat, username), render.SeveritySuccess)
			return nil
		},
	}
	registerCommand.Flags().String(flagNameUsername, "", "operator username")
	registerCommand.Flags().String(flagNamePassword, "", "operator password")
	registerCommand.Flags().String(flagNameRegistrationCode, "", "registration code handed out by the backend operator")
	return registerCommand
}

func (application *ConsoleApplication) newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored credential",
		RunE: func(command *cobra.Command, _ []string) error {
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			dependencies.guard.Clear()
			dependencies.renderer.Notify(signedOutMessage, render.SeverityInfo)
			return nil
		},
	}
}

func (application *ConsoleApplication) newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Validate the stored credential against the identity endpoint",
		RunE: func(command *cobra.Command, _ []string) error {
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			identity, redirect := dependencies.guard.Validate(command.Context(), dependencies.client, session.ViewPathLanding)
			if redirect != nil {
				return redirectToError(redirect)
			}
			dependencies.renderer.Notify(fmt.Sprintf(identityMessageFormat, identity.Subject, identity.IsAdmin), render.SeverityInfo)
			return nil
		},
	}
}

func (application *ConsoleApplication) newDashboardCommand() *cobra.Command {
	dashboardCommand := &cobra.Command{
		Use:   "dashboard",
		Short: "Render the sync dashboard, once or continuously",
		RunE: func(command *cobra.Command, _ []string) error {
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			if _, redirect := dependencies.guard.RequireSession(session.ViewPathLanding); redirect != nil {
				return redirectToError(redirect)
			}

			watch, _ := command.Flags().GetBool(flagNameWatch)
			if !watch {
				return refreshAndRenderDashboard(command.Context(), dependencies.aggregator, dependencies.renderer)
			}
			return runDashboardWatch(command.Context(), dependencies)
		},
	}
	dashboardCommand.Flags().Bool(flagNameWatch, false, "keep polling and re-rendering until interrupted")
	return dashboardCommand
}

// dashboardSource is the slice of the aggregator the dashboard command draws
// from.
type dashboardSource interface {
	RefreshOverview(ctx context.Context) error
	RefreshReport(ctx context.Context) error
	ViewModel() model.DashboardViewModel
}

// dashboardRenderer draws a dashboard view model.
type dashboardRenderer interface {
	RenderDashboard(viewModel model.DashboardViewModel)
}

// refreshAndRenderDashboard settles both dashboard sources, then draws the
// combined view model exactly once.
func refreshAndRenderDashboard(ctx context.Context, source dashboardSource, renderer dashboardRenderer) error {
	if overviewErr := source.RefreshOverview(ctx); overviewErr != nil {
		return describeSessionError(overviewErr)
	}
	if reportErr := source.RefreshReport(ctx); reportErr != nil {
		return describeSessionError(reportErr)
	}
	renderer.RenderDashboard(source.ViewModel())
	return nil
}

// runDashboardWatch mirrors the always-open dashboard page: cached panels come
// up immediately, then the two polling cadences keep them live. An expired
// credential stops the watch; every other failure leaves the last good panels
// on screen.
func runDashboardWatch(ctx context.Context, dependencies *consoleDependencies) error {
	dependencies.aggregator.SeedFromCache()
	dependencies.renderer.RenderDashboard(dependencies.aggregator.ViewModel())

	watchContext, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	sessionExpired := make(chan error, 1)
	reportExpiredRefresh := func(refreshErr error) {
		if apiclient.IsAuthExpired(refreshErr) {
			select {
			case sessionExpired <- refreshErr:
			default:
			}
		}
	}

	poller := task.NewPoller(
		time.Duration(dependencies.configuration.FastPollSeconds)*time.Second,
		time.Duration(dependencies.configuration.SlowPollSeconds)*time.Second,
		func(refreshContext context.Context) {
			if refreshErr := dependencies.aggregator.RefreshOverview(refreshContext); refreshErr != nil {
				reportExpiredRefresh(refreshErr)
				return
			}
			dependencies.renderer.RenderDashboard(dependencies.aggregator.ViewModel())
		},
		func(refreshContext context.Context) {
			if refreshErr := dependencies.aggregator.RefreshReport(refreshContext); refreshErr != nil {
				reportExpiredRefresh(refreshErr)
				return
			}
			dependencies.renderer.RenderDashboard(dependencies.aggregator.ViewModel())
		},
	)
	poller.Start(watchContext)
	defer poller.Stop()

	select {
	case <-watchContext.Done():
		dependencies.renderer.Notify(errorMessageWatchInterrupted, render.SeverityInfo)
		return nil
	case expiredErr := <-sessionExpired:
		return describeSessionError(expiredErr)
	}
}

func (application *ConsoleApplication) newConflictsCommand() *cobra.Command {
	conflictsCommand := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts by status",
		RunE: func(command *cobra.Command, _ []string) error {
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			if _, redirect := dependencies.guard.RequireSession(session.ViewPathConflicts); redirect != nil {
				return redirectToError(redirect)
			}
			status, _ := command.Flags().GetString(flagNameStatus)
			conflicts, listErr := dependencies.client.ListConflicts(command.Context(), strings.ToUpper(strings.TrimSpace(status)))
			if listErr != nil {
				return describeSessionError(listErr)
			}
			dependencies.renderer.RenderConflicts(conflicts)
			return nil
		},
	}
	conflictsCommand.Flags().String(flagNameStatus, model.ConflictStatusOpen, "conflict status to list (OPEN or RESOLVED)")
	return conflictsCommand
}

func (application *ConsoleApplication) newConflictCommand() *cobra.Command {
	conflictCommand := &cobra.Command{
		Use:   "conflict <id>",
		Short: "Show one conflict with both row versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			conflictID, parseErr := parseConflictID(arguments[0])
			if parseErr != nil {
				return parseErr
			}
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}

			readToken, _ := command.Flags().GetString(flagNameReadToken)
			publicView := strings.TrimSpace(readToken) != ""
			if !publicView {
				if _, redirect := dependencies.guard.RequireSession(session.ConflictDetailPath(conflictID)); redirect != nil {
					return redirectToError(redirect)
				}
			}

			var detail model.ConflictDetail
			var detailErr error
			if publicView {
				detail, detailErr = dependencies.client.ConflictDetailPublic(command.Context(), conflictID, readToken)
			} else {
				detail, detailErr = dependencies.client.ConflictDetail(command.Context(), conflictID)
			}
			if detailErr != nil {
				return describeSessionError(detailErr)
			}

			dependencies.renderer.RenderConflictDetail(
				resolution.BuildDetailView(detail, dependencies.guard.HasCredential(), publicView))
			return nil
		},
	}
	conflictCommand.Flags().String(flagNameReadToken, "", "read-only access token from a conflict notification")
	return conflictCommand
}

func (application *ConsoleApplication) newResolveCommand() *cobra.Command {
	resolveCommand := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve one conflict with a winning replica or a manual patch",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			conflictID, parseErr := parseConflictID(arguments[0])
			if parseErr != nil {
				return parseErr
			}
			winnerValue, _ := command.Flags().GetString(flagNameWinnerReplica)
			patchValue, _ := command.Flags().GetString(flagNameManualPatch)
			strategy, strategyErr := chooseResolutionStrategy(winnerValue, patchValue)
			if strategyErr != nil {
				return strategyErr
			}

			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			if _, redirect := dependencies.guard.RequireSession(session.ConflictDetailPath(conflictID)); redirect != nil {
				return redirectToError(redirect)
			}

			controller, controllerErr := resolution.NewController(resolution.Config{
				Resolver:  dependencies.client,
				Refresher: dependencies.aggregator,
				Notifier:  dependencies.renderer,
				Logger:    dependencies.logger,
			})
			if controllerErr != nil {
				return controllerErr
			}
			if resolveErr := controller.Resolve(command.Context(), conflictID, strategy); resolveErr != nil {
				return describeSessionError(resolveErr)
			}
			return nil
		},
	}
	resolveCommand.Flags().String(flagNameWinnerReplica, "", "replica whose row version wins (mysql, postgres or mssql)")
	resolveCommand.Flags().String(flagNameManualPatch, "", "JSON object applied as the resolved row")
	return resolveCommand
}

// chooseResolutionStrategy maps the mutually exclusive resolve flags onto one
// strategy.
func chooseResolutionStrategy(winnerValue string, patchValue string) (resolution.Strategy, error) {
	winnerGiven := strings.TrimSpace(winnerValue) != ""
	patchGiven := strings.TrimSpace(patchValue) != ""
	if winnerGiven == patchGiven {
		return nil, errors.New(errorMessageWinnerOrPatch)
	}
	if winnerGiven {
		replica, replicaErr := model.ParseReplicaName(winnerValue)
		if replicaErr != nil {
			return nil, replicaErr
		}
		return resolution.WinnerStrategy{Replica: replica}, nil
	}
	return resolution.ManualPatchStrategy{Payload: patchValue}, nil
}

func (application *ConsoleApplication) newReportCommand() *cobra.Command {
	reportCommand := &cobra.Command{
		Use:   "report",
		Short: "Render the daily change and conflict report",
		RunE: func(command *cobra.Command, _ []string) error {
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			if _, redirect := dependencies.guard.RequireSession(session.ViewPathReport); redirect != nil {
				return redirectToError(redirect)
			}
			if reportErr := dependencies.aggregator.RefreshReport(command.Context()); reportErr != nil {
				return describeSessionError(reportErr)
			}
			dependencies.renderer.RenderDashboard(dependencies.aggregator.ViewModel())
			return nil
		},
	}
	return reportCommand
}

func (application *ConsoleApplication) newProductsCommand() *cobra.Command {
	productsCommand := &cobra.Command{
		Use:   "products",
		Short: "Browse and edit product rows on one replica",
	}

	listCommand := &cobra.Command{
		Use:   "list",
		Short: "List the product rows of one replica",
		RunE: func(command *cobra.Command, _ []string) error {
			replica, replicaErr := replicaFlag(command)
			if replicaErr != nil {
				return replicaErr
			}
			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			if _, redirect := dependencies.guard.RequireSession(session.ViewPathData); redirect != nil {
				return redirectToError(redirect)
			}
			products, listErr := dependencies.client.ListProducts(command.Context(), replica)
			if listErr != nil {
				return describeSessionError(listErr)
			}
			dependencies.renderer.RenderProducts(replica, products)
			return nil
		},
	}
	listCommand.Flags().String(flagNameReplica, string(model.ReplicaMySQL), "replica to read from")

	addCommand := &cobra.Command{
		Use:   "add",
		Short: "Create or update a product row on one replica",
		RunE: func(command *cobra.Command, _ []string) error {
			replica, replicaErr := replicaFlag(command)
			if replicaErr != nil {
				return replicaErr
			}
			productID, _ := command.Flags().GetString(flagNameProductID)
			productName, _ := command.Flags().GetString(flagNameProductName)
			price, _ := command.Flags().GetFloat64(flagNameProductPrice)
			stock, _ := command.Flags().GetInt64(flagNameProductStock)

			productInput, validationErr := buildProductInput(productID, productName, price, stock)
			if validationErr != nil {
				return validationErr
			}

			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			if _, redirect := dependencies.guard.RequireSession(session.ViewPathData); redirect != nil {
				return redirectToError(redirect)
			}
			saved, saveErr := dependencies.client.UpsertProduct(command.Context(), replica, productInput)
			if saveErr != nil {
				return describeSessionError(saveErr)
			}
			dependencies.renderer.Notify(
				fmt.Sprintf(productSavedMessageFormat, saved.ProductName, replica.Upper(), saved.RowVersion),
				render.SeveritySuccess)
			return nil
		},
	}
	addCommand.Flags().String(flagNameReplica, string(model.ReplicaMySQL), "replica to write to")
	addCommand.Flags().String(flagNameProductID, "", "product id to update, omit to create")
	addCommand.Flags().String(flagNameProductName, "", "product name")
	addCommand.Flags().Float64(flagNameProductPrice, 0, "unit price")
	addCommand.Flags().Int64(flagNameProductStock, 0, "stock count")

	productsCommand.AddCommand(listCommand, addCommand)
	return productsCommand
}

func (application *ConsoleApplication) newTopCustomersCommand() *cobra.Command {
	topCustomersCommand := &cobra.Command{
		Use:   "top-customers",
		Short: "Run the canned top-customers query on one replica",
		RunE: func(command *cobra.Command, _ []string) error {
			replica, replicaErr := replicaFlag(command)
			if replicaErr != nil {
				return replicaErr
			}
			days, _ := command.Flags().GetInt(flagNameDays)
			limit, _ := command.Flags().GetInt(flagNameLimit)

			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			if _, redirect := dependencies.guard.RequireSession(session.ViewPathQuery); redirect != nil {
				return redirectToError(redirect)
			}
			result, queryErr := dependencies.client.TopCustomers(command.Context(), replica, days, limit)
			if queryErr != nil {
				return describeSessionError(queryErr)
			}
			dependencies.renderer.RenderTopCustomers(result)
			return nil
		},
	}
	topCustomersCommand.Flags().String(flagNameReplica, string(model.ReplicaMySQL), "replica to query")
	topCustomersCommand.Flags().Int(flagNameDays, defaultTopCustomersDays, "order history window in days")
	topCustomersCommand.Flags().Int(flagNameLimit, defaultTopCustomersLimit, "number of customers returned")
	return topCustomersCommand
}

func (application *ConsoleApplication) newRunSQLCommand() *cobra.Command {
	runSQLCommand := &cobra.Command{
		Use:   "run-sql <statement>",
		Short: "Run an ad-hoc read-only SQL statement on one replica",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			replica, replicaErr := replicaFlag(command)
			if replicaErr != nil {
				return replicaErr
			}
			statement := strings.TrimSpace(arguments[0])
			if statement == "" {
				return &apiclient.ValidationError{Message: errorMessageEmptySQL}
			}
			limit, _ := command.Flags().GetInt64(flagNameLimit)

			dependencies, dependenciesErr := application.buildDependencies(command)
			if dependenciesErr != nil {
				return dependenciesErr
			}
			if _, redirect := dependencies.guard.RequireSession(session.ViewPathQuery); redirect != nil {
				return redirectToError(redirect)
			}
			result, runErr := dependencies.client.RunSQL(command.Context(), model.SQLRunRequest{
				DB:    string(replica),
				SQL:   statement,
				Limit: clampSQLRowLimit(limit),
			})
			if runErr != nil {
				return describeSessionError(runErr)
			}
			dependencies.renderer.RenderSQLResult(result)
			return nil
		},
	}
	runSQLCommand.Flags().String(flagNameReplica, string(model.ReplicaMySQL), "replica to query")
	runSQLCommand.Flags().Int64(flagNameLimit, defaultSQLRowLimit, "maximum rows returned")
	return runSQLCommand
}

func replicaFlag(command *cobra.Command) (model.ReplicaName, error) {
	replicaValue, _ := command.Flags().GetString(flagNameReplica)
	return model.ParseReplicaName(replicaValue)
}

func parseConflictID(argument string) (int64, error) {
	conflictID, parseErr := strconv.ParseInt(strings.TrimSpace(argument), 10, 64)
	if parseErr != nil || conflictID <= 0 {
		return 0, &apiclient.ValidationError{Message: errorMessageInvalidConflictID}
	}
	return conflictID, nil
}

func validateCredentials(username string, password string) error {
	if strings.TrimSpace(username) == "" {
		return &apiclient.ValidationError{Message: errorMessageEmptyUsername}
	}
	if strings.TrimSpace(password) == "" {
		return &apiclient.ValidationError{Message: errorMessageEmptyPassword}
	}
	return nil
}

// buildProductInput validates a product edit locally; invalid input never
// reaches the backend.
func buildProductInput(productID string, productName string, price float64, stock int64) (model.ProductInput, error) {
	trimmedName := strings.TrimSpace(productName)
	if trimmedName == "" {
		return model.ProductInput{}, &apiclient.ValidationError{Message: errorMessageEmptyProductName}
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return model.ProductInput{}, &apiclient.ValidationError{Message: errorMessageNegativePrice}
	}
	if stock < 0 {
		return model.ProductInput{}, &apiclient.ValidationError{Message: errorMessageNegativeStock}
	}
	productInput := model.ProductInput{
		ProductName: trimmedName,
		Price:       price,
		Stock:       stock,
	}
	trimmedID := strings.TrimSpace(productID)
	if trimmedID != "" {
		productInput.ProductID = &trimmedID
	}
	return productInput, nil
}

func clampSQLRowLimit(limit int64) int64 {
	if limit < minimumSQLRowLimit {
		return minimumSQLRowLimit
	}
	if limit > maximumSQLRowLimit {
		return maximumSQLRowLimit
	}
	return limit
}
