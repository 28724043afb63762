package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ppob")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("CORS_ORIGINS", "http://localhost:4200")
	t.Setenv("PROVIDER_SYNC_INTERVAL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetProviderSyncInterval() != 2*time.Minute {
		t.Fatalf("expected 2m sync interval, got %s", cfg.GetProviderSyncInterval())
	}
	if cfg.GetAsynqQueueName() == "" {
		t.Fatal("expected default asynq queue name")
	}
	if cfg.IsDigiflazzEnabled() && cfg.GetDigiflazzAPIKey() == "" {
		t.Fatal("digiflazz cannot be enabled without an api key")
	}
}

func TestLoadRejectsNonPositiveSyncInterval(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ppob")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("PROVIDER_SYNC_ENABLED", "true")
	t.Setenv("PROVIDER_SYNC_INTERVAL", "nonsense")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PROVIDER_SYNC_INTERVAL")
	}
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	got := splitCSV(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected split result: %#v", got)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"PROVIDER_FETCH_TIMEOUT":    "30x",
		"ASYNQ_CONCURRENCY":         "ten",
		"PROVIDER_SYNC_PARALLELISM": "4.5",
		"DIGIFLAZZ_RATE_PER_MINUTE": "",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/ppob")
			t.Setenv("JWT_ACCESS_SECRET", "secret")
			t.Setenv(key, value)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error to name %s, got %v", key, err)
			}
		})
	}
}

func TestOwnsProviderSync(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ppob")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("PROVIDER_SYNC_ENABLED", "true")
	t.Setenv("PROVIDER_SYNC_OWNER", "scheduler")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OwnsProviderSync(SyncOwnerAPI) {
		t.Fatal("api must not own sync when the scheduler does")
	}
	if !cfg.OwnsProviderSync(SyncOwnerScheduler) {
		t.Fatal("expected scheduler to own sync")
	}

	cfg.ProviderSyncEnabled = false
	if cfg.OwnsProviderSync(SyncOwnerScheduler) {
		t.Fatal("disabled sync has no owner")
	}
}

func TestLoadRejectsUnknownSyncOwner(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ppob")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("PROVIDER_SYNC_OWNER", "both")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown PROVIDER_SYNC_OWNER")
	}
}
