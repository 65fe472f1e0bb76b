package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/config"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/idempotency"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/jobs"
)

func TestSecretVersionPins(t *testing.T) {
	pins := secretVersionPins("prod:secret://payments/razorpay=7, sm://payments/paypal=3, webhook=latest,broken")
	want := map[string]string{
		"prod:secret://payments/razorpay": "7",
		"secret://payments/paypal":        "3",
		"secret://webhook":                "latest",
	}
	if len(pins) != len(want) {
		t.Fatalf("expected %d pins, got %v", len(want), pins)
	}
	for ref, version := range want {
		if pins[ref] != version {
			t.Fatalf("expected %s=%s, got %v", ref, version, pins)
		}
	}
}

func TestParseKeyValueListNormalisesKeys(t *testing.T) {
	got := parseKeyValueList(" PROD = jd-prod ,STG=jd-stg,=x,empty=", nil)
	if got["PROD"] != "jd-prod" || got["STG"] != "jd-stg" || len(got) != 2 {
		t.Fatalf("unexpected entries %v", got)
	}
}

func TestRequiredSecretNames(t *testing.T) {
	if names := requiredSecretNames(map[string]string{}); len(names) != 0 {
		t.Fatalf("expected no required secrets, got %v", names)
	}
	names := requiredSecretNames(map[string]string{
		"API_PAYMENTS_RAZORPAY_KEY_ID":  "rzp_live",
		"API_PAYMENTS_PAYPAL_CLIENT_ID": "pp",
	})
	if len(names) != 3 {
		t.Fatalf("expected gateway secrets required, got %v", names)
	}
}

func TestBuildNotifierDefaultsToLog(t *testing.T) {
	var closers closerStack
	sink, checks, err := buildNotifier(context.Background(), config.Config{Notify: config.NotifyConfig{Backend: config.NotifyBackendLog}}, zap.NewNop(), &closers)
	if err != nil {
		t.Fatalf("build notifier: %v", err)
	}
	fan, ok := sink.(jobs.FanOut)
	if !ok || len(fan) != 2 {
		t.Fatalf("expected metrics and log sinks, got %T", sink)
	}
	if len(checks) != 0 || len(closers) != 0 {
		t.Fatalf("log backend needs no health checks or closers")
	}
}

func TestBuildIdempotencyStoreDefaultsToMemory(t *testing.T) {
	var closers closerStack
	store, _, err := buildIdempotencyStore(context.Background(), config.Config{Idempotency: config.IdempotencyConfig{Backend: config.IdempotencyBackendMemory}}, nil, &closers)
	if err != nil {
		t.Fatalf("build store: %v", err)
	}
	if _, ok := store.(*idempotency.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}
