package service

import (
	"context"
	"testing"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/exchange"
	"github.com/portfolio-tracker/internal/models"
	syncengine "github.com/portfolio-tracker/internal/sync"
	"github.com/portfolio-tracker/internal/vault"
)

// fakeIntegrationRepo is an in-memory IntegrationRepository.
type fakeIntegrationRepo struct {
	byID map[string]*models.Integration
}

func newFakeIntegrationRepo() *fakeIntegrationRepo {
	return &fakeIntegrationRepo{byID: make(map[string]*models.Integration)}
}

func (r *fakeIntegrationRepo) Upsert(_ context.Context, integration *models.Integration) error {
	for _, existing := range r.byID {
		if existing.UserID == integration.UserID && existing.Provider == integration.Provider {
			integration.ID = existing.ID
			break
		}
	}
	copied := *integration
	r.byID[integration.ID] = &copied
	return nil
}

func (r *fakeIntegrationRepo) GetByID(_ context.Context, id string) (*models.Integration, error) {
	integration, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *integration
	return &copied, nil
}

func (r *fakeIntegrationRepo) ListByUser(_ context.Context, userID string) ([]*models.Integration, error) {
	var out []*models.Integration
	for _, integration := range r.byID {
		if integration.UserID == userID {
			copied := *integration
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeOrchestrator records the credentials it was handed.
type fakeOrchestrator struct {
	creds  exchange.Credentials
	runErr error
	runs   int
}

func (o *fakeOrchestrator) Run(_ context.Context, integration *models.Integration, creds exchange.Credentials) (*syncengine.Report, error) {
	o.runs++
	o.creds = creds
	if o.runErr != nil {
		return nil, o.runErr
	}
	return &syncengine.Report{IntegrationID: integration.ID, Datasets: map[string]syncengine.DatasetReport{}}, nil
}

// fakeResetter counts cursor resets.
type fakeResetter struct {
	resets []string
}

func (r *fakeResetter) Reset(_ context.Context, integrationID string) error {
	r.resets = append(r.resets, integrationID)
	return nil
}

// fakeInvalidator records invalidated patterns.
type fakeInvalidator struct {
	patterns []string
}

func (c *fakeInvalidator) DelPattern(_ context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	return nil
}

type integrationFixture struct {
	repo         *fakeIntegrationRepo
	orchestrator *fakeOrchestrator
	resetter     *fakeResetter
	cache        *fakeInvalidator
	service      *IntegrationService
}

func newIntegrationFixture(t *testing.T) *integrationFixture {
	t.Helper()
	v, err := vault.New("test-secret")
	if err != nil {
		t.Fatalf("vault setup failed: %v", err)
	}
	f := &integrationFixture{
		repo:         newFakeIntegrationRepo(),
		orchestrator: &fakeOrchestrator{},
		resetter:     &fakeResetter{},
		cache:        &fakeInvalidator{},
	}
	f.service = NewIntegrationService(f.repo, v, f.orchestrator, f.resetter, f.cache)
	return f
}

// TestConnectEncryptsCredentials tests that plaintext never reaches storage
func TestConnectEncryptsCredentials(t *testing.T) {
	f := newIntegrationFixture(t)

	integration, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:    "user-1",
		Provider:  "binance",
		Label:     "main account",
		APIKey:    "plain-key",
		APISecret: "plain-secret",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	stored := f.repo.byID[integration.ID]
	if stored == nil {
		t.Fatal("integration not stored")
	}
	if stored.APIKeyEnc == "plain-key" || stored.APISecretEnc == "plain-secret" {
		t.Error("credentials stored in plaintext")
	}
	if stored.APIKeyEnc == "" || stored.APISecretEnc == "" {
		t.Error("encrypted credentials missing")
	}
}

// TestConnectNormalizesProvider tests case/space tolerance
func TestConnectNormalizesProvider(t *testing.T) {
	f := newIntegrationFixture(t)

	integration, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:    "user-1",
		Provider:  "  Binance ",
		APIKey:    "k",
		APISecret: "s",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if integration.Provider != models.ProviderBinance {
		t.Errorf("provider = %q", integration.Provider)
	}
}

// TestConnectRejectsUnsupportedProvider tests the provider whitelist
func TestConnectRejectsUnsupportedProvider(t *testing.T) {
	f := newIntegrationFixture(t)

	_, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:    "user-1",
		Provider:  "kraken",
		APIKey:    "k",
		APISecret: "s",
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if apperrors.Categorize(err).Code != "UNSUPPORTED_PROVIDER" {
		t.Errorf("error code = %s", apperrors.Categorize(err).Code)
	}
}

// TestConnectRejectsMissingCredentials tests the credential requirement
func TestConnectRejectsMissingCredentials(t *testing.T) {
	f := newIntegrationFixture(t)

	_, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:   "user-1",
		Provider: "binance",
		APIKey:   "k",
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if apperrors.Categorize(err).Code != "CREDENTIAL_ERROR" {
		t.Errorf("error code = %s", apperrors.Categorize(err).Code)
	}
}

// TestSyncDecryptsAndInvalidates tests the full credential round trip
func TestSyncDecryptsAndInvalidates(t *testing.T) {
	f := newIntegrationFixture(t)

	integration, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:    "user-1",
		Provider:  "binance",
		APIKey:    "the-key",
		APISecret: "the-secret",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	report, err := f.service.Sync(context.Background(), "user-1", integration.ID)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if report.IntegrationID != integration.ID {
		t.Errorf("report integration = %q", report.IntegrationID)
	}

	// The orchestrator receives the decrypted pair.
	if f.orchestrator.creds.Key != "the-key" || f.orchestrator.creds.Secret != "the-secret" {
		t.Errorf("orchestrator credentials = %+v", f.orchestrator.creds)
	}

	// A successful run drops the user's derived views.
	if len(f.cache.patterns) != 1 || f.cache.patterns[0] != "portfolio:user-1:*" {
		t.Errorf("invalidated patterns = %v", f.cache.patterns)
	}
}

// TestSyncForeignIntegration tests the ownership check
func TestSyncForeignIntegration(t *testing.T) {
	f := newIntegrationFixture(t)

	integration, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:    "user-1",
		Provider:  "binance",
		APIKey:    "k",
		APISecret: "s",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err = f.service.Sync(context.Background(), "user-2", integration.ID)
	if err == nil {
		t.Fatal("expected an error")
	}
	// Foreign and missing integrations look the same.
	if apperrors.Categorize(err).Code != "NOT_FOUND" {
		t.Errorf("error code = %s", apperrors.Categorize(err).Code)
	}
	if f.orchestrator.runs != 0 {
		t.Error("orchestrator must not run for a foreign integration")
	}
}

// TestResetCursors tests the reset passthrough with ownership
func TestResetCursors(t *testing.T) {
	f := newIntegrationFixture(t)

	integration, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:    "user-1",
		Provider:  "binance",
		APIKey:    "k",
		APISecret: "s",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := f.service.ResetCursors(context.Background(), "user-1", integration.ID); err != nil {
		t.Fatalf("ResetCursors failed: %v", err)
	}
	if len(f.resetter.resets) != 1 || f.resetter.resets[0] != integration.ID {
		t.Errorf("resets = %v", f.resetter.resets)
	}

	if err := f.service.ResetCursors(context.Background(), "user-2", integration.ID); err == nil {
		t.Error("expected foreign reset to fail")
	}
}

// TestReconnectReplacesCredentials tests upsert-in-place semantics
func TestReconnectReplacesCredentials(t *testing.T) {
	f := newIntegrationFixture(t)

	first, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:    "user-1",
		Provider:  "binance",
		APIKey:    "old-key",
		APISecret: "old-secret",
	})
	if err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}

	second, err := f.service.Connect(context.Background(), ConnectInput{
		UserID:    "user-1",
		Provider:  "binance",
		APIKey:    "new-key",
		APISecret: "new-secret",
	})
	if err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("reconnect created a new integration: %s vs %s", second.ID, first.ID)
	}

	if _, err := f.service.Sync(context.Background(), "user-1", first.ID); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if f.orchestrator.creds.Key != "new-key" {
		t.Errorf("expected replaced credentials, got key %q", f.orchestrator.creds.Key)
	}
}
