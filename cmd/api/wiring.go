package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/config"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/idempotency"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/jobs"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/observability"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/secrets"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories/postgres"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// closerStack releases resources in reverse acquisition order.
type closerStack []namedCloser

func (s *closerStack) push(name string, fn func(context.Context) error) {
	*s = append(*s, namedCloser{name: name, close: fn})
}

func (s closerStack) closeAll(ctx context.Context, logger *zap.Logger) {
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i].close(ctx); err != nil {
			logger.Warn("close error", zap.String("resource", s[i].name), zap.Error(err))
		}
	}
}

// buildNotifier fans order events out to the metrics sink and the configured publisher.
func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger, closers *closerStack) (services.NotificationSink, []repositories.DependencyCheck, error) {
	metrics, err := observability.NewOrderMetrics(nil)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Notify.Backend {
	case config.NotifyBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Notify.PubSubProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Notify.PubSubTopic)
		closers.push("pubsub", func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		publisher, err := jobs.NewPubSubNotifier(topic)
		if err != nil {
			return nil, nil, err
		}
		check := repositories.DependencyCheck{
			Name: "pubsub",
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", cfg.Notify.PubSubTopic)
				}
				return nil
			},
		}
		return jobs.FanOut{metrics, publisher}, []repositories.DependencyCheck{check}, nil

	case config.NotifyBackendKafka:
		client, err := jobs.NewKafkaClient(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		closers.push("kafka", func(context.Context) error {
			client.Close()
			return nil
		})
		publisher, err := jobs.NewKafkaNotifier(client, cfg.Notify.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		check := repositories.DependencyCheck{Name: "kafka", Check: client.Ping}
		return jobs.FanOut{metrics, publisher}, []repositories.DependencyCheck{check}, nil

	default:
		return jobs.FanOut{metrics, jobs.NewLogNotifier(logger)}, nil, nil
	}
}

// buildIdempotencyStore selects the backing store for idempotency keys.
func buildIdempotencyStore(ctx context.Context, cfg config.Config, store *postgres.Store, closers *closerStack) (idempotency.Store, []repositories.DependencyCheck, error) {
	switch cfg.Idempotency.Backend {
	case config.IdempotencyBackendPostgres:
		return idempotency.NewPostgresStore(store.Pool()), nil, nil

	case config.IdempotencyBackendFirestore:
		if host := strings.TrimSpace(cfg.Firestore.EmulatorHost); host != "" {
			if err := os.Setenv("FIRESTORE_EMULATOR_HOST", host); err != nil {
				return nil, nil, err
			}
		}
		var opts []option.ClientOption
		if cfg.Firebase.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		}
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		closers.push("firestore", func(context.Context) error {
			return client.Close()
		})
		check := repositories.DependencyCheck{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := client.Collections(ctx).Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		}
		return idempotency.NewFirestoreStore(client), []repositories.DependencyCheck{check}, nil

	default:
		return idempotency.NewMemoryStore(), nil, nil
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS"), strings.ToLower); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPins(lookup("API_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the gateway secrets that must resolve for the providers in use.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_PAYMENTS_RAZORPAY_KEY_ID"]) != "" {
		required = append(required, "Payments.RazorpayKeySecret", "Payments.RazorpayWebhookSecret")
	}
	if strings.TrimSpace(env["API_PAYMENTS_PAYPAL_CLIENT_ID"]) != "" {
		required = append(required, "Payments.PayPalSecret")
	}
	return required
}

// secretVersionPins parses "[env:]name=version" entries into pins keyed by canonical reference.
func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(raw, nil) {
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		}
		pins[prefix+ref] = version
	}
	return pins
}

func parseKeyValueList(raw string, normaliseKey func(string) string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if normaliseKey != nil {
			key = normaliseKey(key)
		}
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
