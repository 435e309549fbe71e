package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/shamba/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "shamba-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo.(*SQLRepository)
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetFarmer", func(t *testing.T) {
		farmer := &domain.Farmer{
			Phone:         "+254712345678",
			Name:          "Wanjiku",
			Location:      domain.Location{Latitude: -0.4167, Longitude: 36.95},
			CropType:      "Maize",
			FarmSizeAcres: 2.5,
		}
		if err := repo.SaveFarmer(ctx, farmer); err != nil {
			t.Fatalf("SaveFarmer failed: %v", err)
		}

		got, err := repo.GetFarmer(ctx, "254712345678")
		if err != nil {
			t.Fatalf("GetFarmer failed: %v", err)
		}
		if got.Phone != "254712345678" {
			t.Errorf("expected normalized phone, got %s", got.Phone)
		}
		if got.CropType != "maize" {
			t.Errorf("expected lower-case crop, got %s", got.CropType)
		}
		if got.Location != farmer.Location {
			t.Errorf("expected location %+v, got %+v", farmer.Location, got.Location)
		}
		if got.FarmSizeAcres != 2.5 {
			t.Errorf("expected 2.5 acres, got %v", got.FarmSizeAcres)
		}

		// Lookup with the '+' form finds the same row.
		if _, err := repo.GetFarmer(ctx, "+254712345678"); err != nil {
			t.Errorf("GetFarmer with '+' failed: %v", err)
		}
	})

	t.Run("UpdatePreservesCreatedAt", func(t *testing.T) {
		first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		later := first.Add(48 * time.Hour)

		repo.now = func() time.Time { return first }
		if err := repo.SaveFarmer(ctx, &domain.Farmer{
			Phone: "254700000010", Location: domain.Location{Latitude: 0, Longitude: 37}, CropType: "beans",
		}); err != nil {
			t.Fatalf("SaveFarmer failed: %v", err)
		}

		repo.now = func() time.Time { return later }
		if err := repo.SaveFarmer(ctx, &domain.Farmer{
			Phone: "254700000010", Location: domain.Location{Latitude: 0, Longitude: 37}, CropType: "onion",
		}); err != nil {
			t.Fatalf("SaveFarmer update failed: %v", err)
		}
		repo.now = func() time.Time { return time.Now().UTC() }

		got, err := repo.GetFarmer(ctx, "254700000010")
		if err != nil {
			t.Fatalf("GetFarmer failed: %v", err)
		}
		if got.CropType != "onion" {
			t.Errorf("expected updated crop, got %s", got.CropType)
		}
		if !got.CreatedAt.Equal(first) {
			t.Errorf("expected created_at %v, got %v", first, got.CreatedAt)
		}
		if !got.UpdatedAt.Equal(later) {
			t.Errorf("expected updated_at %v, got %v", later, got.UpdatedAt)
		}
	})

	t.Run("GetFarmerNotFound", func(t *testing.T) {
		if _, err := repo.GetFarmer(ctx, "254799999999"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveFarmerValidates", func(t *testing.T) {
		err := repo.SaveFarmer(ctx, &domain.Farmer{Phone: "2547", Location: domain.Location{Latitude: 120}, CropType: "maize"})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("ListFarmers", func(t *testing.T) {
		farmers, err := repo.ListFarmers(ctx, 0)
		if err != nil {
			t.Fatalf("ListFarmers failed: %v", err)
		}
		if len(farmers) != 2 {
			t.Fatalf("expected 2 farmers, got %d", len(farmers))
		}
		if farmers[0].Phone > farmers[1].Phone {
			t.Error("expected farmers ordered by phone")
		}

		limited, _ := repo.ListFarmers(ctx, 1)
		if len(limited) != 1 {
			t.Errorf("expected limit 1, got %d", len(limited))
		}
	})

	t.Run("FraudRules", func(t *testing.T) {
		rule := &domain.FraudRuleConfig{
			ID:          "fraud-implausible-heat",
			Name:        "Implausible heat",
			Description: "Mean temperature above 35C",
			Expression:  "temp_avg > 35.0",
			Penalty:     0.25,
			Enabled:     true,
		}
		if err := repo.SaveFraudRule(ctx, rule); err != nil {
			t.Fatalf("SaveFraudRule failed: %v", err)
		}

		rule.Enabled = false
		rule.Penalty = 0.3
		if err := repo.SaveFraudRule(ctx, rule); err != nil {
			t.Fatalf("SaveFraudRule update failed: %v", err)
		}

		rules, err := repo.ListFraudRules(ctx)
		if err != nil {
			t.Fatalf("ListFraudRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}
		got := rules[0]
		if got.Enabled || got.Penalty != 0.3 || got.Version != "1.0.0" {
			t.Errorf("unexpected stored rule %+v", got)
		}
		if got.Description != rule.Description {
			t.Errorf("expected description %q, got %q", rule.Description, got.Description)
		}
	})

	t.Run("BuiltinRulesAreNotStored", func(t *testing.T) {
		err := repo.SaveFraudRule(ctx, &domain.FraudRuleConfig{ID: domain.RuleLowNDVI, Builtin: true})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("SELECT * FROM farmers WHERE phone = ? AND crop_type = ?"); got != "SELECT * FROM farmers WHERE phone = $1 AND crop_type = $2" {
		t.Errorf("unexpected rebind %q", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %q", got)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "nested", "shamba.db"),
	}

	first, err := New(cfg)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	repo := first.(*SQLRepository)
	if v, err := repo.schemaVersion(ctx); err != nil || v != len(migrations) {
		t.Fatalf("expected schema version %d, got %d (%v)", len(migrations), v, err)
	}
	first.Close()

	second, err := New(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	var rows int
	if err := second.(*SQLRepository).db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&rows); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rows != len(migrations) {
		t.Errorf("expected %d recorded migrations after reopen, got %d", len(migrations), rows)
	}
}
