package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIRESTORE_PROJECT_ID": "customtees-dev",
		"API_AUTH_JWT_SECRET":      "dev-signing-secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.FallbackRole != "user" {
		t.Errorf("expected default fallback role user, got %s", cfg.Auth.FallbackRole)
	}
	if cfg.Auth.Leeway != defaultAuthLeeway {
		t.Errorf("unexpected default auth leeway: %s", cfg.Auth.Leeway)
	}
	if cfg.Payments.Square.BaseURL != defaultSquareBaseURL {
		t.Errorf("expected default square base url, got %s", cfg.Payments.Square.BaseURL)
	}
	if cfg.Shipping.UPS.BaseURL != defaultUPSBaseURL {
		t.Errorf("expected default ups base url, got %s", cfg.Shipping.UPS.BaseURL)
	}
	if cfg.Events.ProjectID != "customtees-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Events.Enabled {
		t.Errorf("expected events disabled by default")
	}
	if cfg.Coupons.EnforceUsageLimits {
		t.Errorf("expected usage limit enforcement disabled by default")
	}
	if cfg.Pricing.RatePerArea != defaultRatePerArea {
		t.Errorf("unexpected default rate per area: %d", cfg.Pricing.RatePerArea)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_READ_TIMEOUT":           "20s",
		"API_SERVER_WRITE_TIMEOUT":          "25s",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_FIRESTORE_PROJECT_ID":          "customtees-prod",
		"API_AUTH_JWT_SECRET":               "secret://auth/jwt",
		"API_AUTH_ISSUER":                   "customtees-api",
		"API_AUTH_AUDIENCE":                 "customtees-storefront",
		"API_AUTH_LEEWAY":                   "1m",
		"API_PAYMENTS_RAZORPAY_KEY_ID":      "rzp_live_key",
		"API_PAYMENTS_RAZORPAY_KEY_SECRET":  "secret://razorpay/secret",
		"API_PAYMENTS_SQUARE_ACCESS_TOKEN":  "secret://square/token",
		"API_PAYMENTS_SQUARE_BASE_URL":      "https://connect.squareupsandbox.com",
		"API_SHIPPING_UPS_CLIENT_ID":        "ups-client",
		"API_SHIPPING_UPS_CLIENT_SECRET":    "secret://ups/secret",
		"API_SHIPPING_UPS_ACCOUNT_NUMBER":   "A1B2C3",
		"API_SHIPPING_SHIPPER_NAME":         "CustomTees Fulfilment",
		"API_SHIPPING_SHIPPER_POSTAL_CODE":  "560100",
		"API_EVENTS_TOPIC":                  "order-events",
		"API_EVENTS_ENABLED":                "true",
		"API_COUPONS_ENFORCE_USAGE_LIMITS":  "true",
		"API_PRICING_RATE_PER_AREA":         "750",
		"API_RATELIMIT_DEFAULT_PER_MIN":     "150",
		"API_RATELIMIT_AUTH_PER_MIN":        "300",
		"API_IDEMPOTENCY_HEADER":            "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":               "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL":  "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":     "500",
	}

	secrets := map[string]string{
		"secret://auth/jwt":        "signing-secret",
		"secret://razorpay/secret": "razorpay-secret",
		"secret://square/token":    "square-token",
		"secret://ups/secret":      "ups-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Auth.Secret != "signing-secret" {
		t.Errorf("expected resolved auth secret, got %s", cfg.Auth.Secret)
	}
	if cfg.Auth.Issuer != "customtees-api" {
		t.Errorf("unexpected issuer %s", cfg.Auth.Issuer)
	}
	if cfg.Auth.Leeway != time.Minute {
		t.Errorf("unexpected leeway %s", cfg.Auth.Leeway)
	}
	if cfg.Payments.Razorpay.KeySecret != "razorpay-secret" {
		t.Errorf("expected resolved razorpay secret, got %s", cfg.Payments.Razorpay.KeySecret)
	}
	if cfg.Payments.Square.AccessToken != "square-token" {
		t.Errorf("expected resolved square token, got %s", cfg.Payments.Square.AccessToken)
	}
	if cfg.Payments.Square.BaseURL != "https://connect.squareupsandbox.com" {
		t.Errorf("unexpected square base url %s", cfg.Payments.Square.BaseURL)
	}
	if cfg.Shipping.UPS.ClientSecret != "ups-secret" {
		t.Errorf("expected resolved ups secret, got %s", cfg.Shipping.UPS.ClientSecret)
	}
	if cfg.Shipping.UPS.ShipperName != "CustomTees Fulfilment" {
		t.Errorf("unexpected shipper name %s", cfg.Shipping.UPS.ShipperName)
	}
	if !cfg.Events.Enabled || cfg.Events.Topic != "order-events" {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
	if !cfg.Coupons.EnforceUsageLimits {
		t.Errorf("expected usage limit enforcement enabled")
	}
	if cfg.Pricing.RatePerArea != 750 {
		t.Errorf("unexpected rate per area %d", cfg.Pricing.RatePerArea)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=customtees-dot\nAPI_AUTH_JWT_SECRET=dot-secret\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "customtees-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validationErr.Fields()
	found := false
	for _, field := range fields {
		if field == "Auth.Secret" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Auth.Secret in missing fields, got %v", fields)
	}
}

func TestLoadEventsEnabledRequiresTopic(t *testing.T) {
	env := baseEnv()
	env["API_EVENTS_ENABLED"] = "true"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_PAYMENTS_RAZORPAY_KEY_SECRET"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS":  "secret://razorpay/secret=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://razorpay/secret=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.Razorpay.KeySecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Payments.Razorpay.KeySecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Shipping.UPS.ClientSecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Shipping.UPS.ClientSecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := baseEnv()
	env["API_PAYMENTS_SQUARE_ACCESS_TOKEN"] = "sm://square/token"

	secrets := map[string]string{
		"secret://square/token": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.Square.AccessToken != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Payments.Square.AccessToken)
	}
}
