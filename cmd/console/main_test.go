package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/apiclient"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/model"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/resolution"
)

type fakeDashboardSource struct {
	overviewErr  error
	reportErr    error
	refreshCount int
	viewModel    model.DashboardViewModel
}

func (source *fakeDashboardSource) RefreshOverview(context.Context) error {
	source.refreshCount++
	return source.overviewErr
}

func (source *fakeDashboardSource) RefreshReport(context.Context) error {
	source.refreshCount++
	return source.reportErr
}

func (source *fakeDashboardSource) ViewModel() model.DashboardViewModel {
	return source.viewModel
}

type recordingDashboardRenderer struct {
	renderCount int
	lastHealth  model.HealthStatus
}

func (renderer *recordingDashboardRenderer) RenderDashboard(viewModel model.DashboardViewModel) {
	renderer.renderCount++
	renderer.lastHealth = viewModel.Health
}

func TestRefreshAndRenderDashboardDrawsExactlyOnce(testingT *testing.T) {
	source := &fakeDashboardSource{viewModel: model.DashboardViewModel{Health: model.HealthWarn}}
	renderer := &recordingDashboardRenderer{}

	require.NoError(testingT, refreshAndRenderDashboard(context.Background(), source, renderer))

	require.Equal(testingT, 2, source.refreshCount)
	require.Equal(testingT, 1, renderer.renderCount)
	require.Equal(testingT, model.HealthWarn, renderer.lastHealth)
}

func TestRefreshAndRenderDashboardSkipsDrawingOnFailure(testingT *testing.T) {
	source := &fakeDashboardSource{reportErr: errors.New("backend down")}
	renderer := &recordingDashboardRenderer{}

	require.Error(testingT, refreshAndRenderDashboard(context.Background(), source, renderer))

	require.Zero(testingT, renderer.renderCount)
}

func TestParseConflictIDAcceptsPositiveIntegers(testingT *testing.T) {
	conflictID, parseErr := parseConflictID(" 42 ")
	require.NoError(testingT, parseErr)
	require.Equal(testingT, int64(42), conflictID)
}

func TestParseConflictIDRejectsBadInput(testingT *testing.T) {
	for _, badArgument := range []string{"", "abc", "0", "-3", "1.5"} {
		_, parseErr := parseConflictID(badArgument)
		var validationErr *apiclient.ValidationError
		require.ErrorAs(testingT, parseErr, &validationErr, badArgument)
	}
}

func TestChooseResolutionStrategyRequiresExactlyOneFlag(testingT *testing.T) {
	_, neitherErr := chooseResolutionStrategy("", "")
	require.Error(testingT, neitherErr)

	_, bothErr := chooseResolutionStrategy("mysql", `{"a":1}`)
	require.Error(testingT, bothErr)
}

func TestChooseResolutionStrategyParsesWinnerReplica(testingT *testing.T) {
	strategy, strategyErr := chooseResolutionStrategy(" Postgres ", "")
	require.NoError(testingT, strategyErr)
	winnerStrategy, isWinner := strategy.(resolution.WinnerStrategy)
	require.True(testingT, isWinner)
	require.Equal(testingT, model.ReplicaPostgres, winnerStrategy.Replica)
}

func TestChooseResolutionStrategyRejectsUnknownReplica(testingT *testing.T) {
	_, strategyErr := chooseResolutionStrategy("oracle", "")
	require.Error(testingT, strategyErr)
}

func TestChooseResolutionStrategyPassesPatchThrough(testingT *testing.T) {
	strategy, strategyErr := chooseResolutionStrategy("", `{"price": 3}`)
	require.NoError(testingT, strategyErr)
	patchStrategy, isPatch := strategy.(resolution.ManualPatchStrategy)
	require.True(testingT, isPatch)
	require.Equal(testingT, `{"price": 3}`, patchStrategy.Payload)
}

func TestBuildProductInputValidatesLocally(testingT *testing.T) {
	testCases := []struct {
		name        string
		productName string
		price       float64
		stock       int64
		expectError bool
	}{
		{name: "valid", productName: "widget", price: 9.99, stock: 3},
		{name: "blank name", productName: "  ", price: 1, stock: 1, expectError: true},
		{name: "negative price", productName: "widget", price: -0.01, stock: 1, expectError: true},
		{name: "negative stock", productName: "widget", price: 1, stock: -1, expectError: true},
		{name: "zero price and stock", productName: "widget"},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(subTest *testing.T) {
			productInput, validationErr := buildProductInput("", testCase.productName, testCase.price, testCase.stock)
			if testCase.expectError {
				var typedErr *apiclient.ValidationError
				require.ErrorAs(subTest, validationErr, &typedErr)
				return
			}
			require.NoError(subTest, validationErr)
			require.Equal(subTest, "widget", productInput.ProductName)
			require.Nil(subTest, productInput.ProductID)
		})
	}
}

func TestBuildProductInputCarriesOptionalProductID(testingT *testing.T) {
	productInput, validationErr := buildProductInput(" p-1 ", "widget", 1, 1)
	require.NoError(testingT, validationErr)
	require.NotNil(testingT, productInput.ProductID)
	require.Equal(testingT, "p-1", *productInput.ProductID)
}

func TestClampSQLRowLimit(testingT *testing.T) {
	require.Equal(testingT, int64(minimumSQLRowLimit), clampSQLRowLimit(0))
	require.Equal(testingT, int64(minimumSQLRowLimit), clampSQLRowLimit(-50))
	require.Equal(testingT, int64(250), clampSQLRowLimit(250))
	require.Equal(testingT, int64(maximumSQLRowLimit), clampSQLRowLimit(5000))
}

func TestValidateCredentialsRejectsBlankValues(testingT *testing.T) {
	require.Error(testingT, validateCredentials("", "secret"))
	require.Error(testingT, validateCredentials("operator", "  "))
	require.NoError(testingT, validateCredentials("operator", "secret"))
}

func TestConfigurationReadsEnvironment(testingT *testing.T) {
	testingT.Setenv(environmentKeyAPIBaseURL, "http://sync.internal:9000")
	testingT.Setenv(environmentKeyStateDirectory, testingT.TempDir())
	testingT.Setenv(environmentKeyFastPollSeconds, "3")
	testingT.Setenv(environmentKeySlowPollSeconds, "45")
	testingT.Setenv(environmentKeyReportDays, "7")
	testingT.Setenv(environmentKeyOverviewLimit, "20")

	application := NewConsoleApplication()
	_, commandErr := application.Command()
	require.NoError(testingT, commandErr)

	configuration, configurationErr := application.loadConfiguration()
	require.NoError(testingT, configurationErr)
	require.Equal(testingT, "http://sync.internal:9000", configuration.APIBaseURL)
	require.Equal(testingT, 3, configuration.FastPollSeconds)
	require.Equal(testingT, 45, configuration.SlowPollSeconds)
	require.Equal(testingT, 7, configuration.ReportDays)
	require.Equal(testingT, 20, configuration.OverviewLimit)
}

func TestConfigurationDefaults(testingT *testing.T) {
	application := NewConsoleApplication()
	_, commandErr := application.Command()
	require.NoError(testingT, commandErr)

	configuration, configurationErr := application.loadConfiguration()
	require.NoError(testingT, configurationErr)
	require.Equal(testingT, defaultAPIBaseURL, configuration.APIBaseURL)
	require.Equal(testingT, defaultFastPollSeconds, configuration.FastPollSeconds)
	require.Equal(testingT, defaultSlowPollSeconds, configuration.SlowPollSeconds)
	require.NotEmpty(testingT, configuration.StateDirectory)
}
