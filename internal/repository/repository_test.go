package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := domain.GlobalTenantID

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetIndicator", func(t *testing.T) {
		ind := &domain.Indicator{
			ID:          "large-transfer",
			Label:       "Large transfer",
			Description: "Transfers above 10k",
			Expression:  `tx_type == "TRANSFER" && amount > 10000.0`,
			Position:    2,
			Enabled:     true,
		}

		if err := repo.SaveIndicator(ctx, tenantID, ind); err != nil {
			t.Fatalf("SaveIndicator failed: %v", err)
		}
		if ind.CreatedAt.IsZero() || ind.TenantID != tenantID {
			t.Errorf("expected saved indicator to be stamped, got %+v", ind)
		}

		got, err := repo.GetIndicator(ctx, tenantID, ind.ID)
		if err != nil {
			t.Fatalf("GetIndicator failed: %v", err)
		}
		if got.Label != ind.Label || got.Expression != ind.Expression {
			t.Errorf("unexpected indicator %+v", got)
		}
		if got.Position != 2 || !got.Enabled {
			t.Errorf("expected position 2 enabled, got %d %v", got.Position, got.Enabled)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, got.TenantID)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		ind := &domain.Indicator{ID: "upsert", Label: "v1", Expression: "is_night"}
		if err := repo.SaveIndicator(ctx, tenantID, ind); err != nil {
			t.Fatalf("SaveIndicator failed: %v", err)
		}
		ind.Label = "v2"
		ind.Enabled = true
		if err := repo.SaveIndicator(ctx, tenantID, ind); err != nil {
			t.Fatalf("second SaveIndicator failed: %v", err)
		}

		got, err := repo.GetIndicator(ctx, tenantID, "upsert")
		if err != nil {
			t.Fatalf("GetIndicator failed: %v", err)
		}
		if got.Label != "v2" || !got.Enabled {
			t.Errorf("expected updated indicator, got %+v", got)
		}
	})

	t.Run("ListOrdersByPosition", func(t *testing.T) {
		otherTenant := "tenant-list"
		for _, ind := range []*domain.Indicator{
			{ID: "c", Label: "C", Expression: "is_weekend", Position: 1},
			{ID: "b", Label: "B", Expression: "is_night", Position: 0},
			{ID: "a", Label: "A", Expression: "is_night", Position: 1},
		} {
			if err := repo.SaveIndicator(ctx, otherTenant, ind); err != nil {
				t.Fatalf("SaveIndicator(%s) failed: %v", ind.ID, err)
			}
		}

		list, err := repo.ListIndicators(ctx, otherTenant)
		if err != nil {
			t.Fatalf("ListIndicators failed: %v", err)
		}
		var ids []string
		for _, ind := range list {
			ids = append(ids, ind.ID)
		}
		if len(ids) != 3 || ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
			t.Errorf("expected order [b a c], got %v", ids)
		}
	})

	t.Run("ListEmpty", func(t *testing.T) {
		list, err := repo.ListIndicators(ctx, "nobody")
		if err != nil {
			t.Fatalf("ListIndicators failed: %v", err)
		}
		if list == nil || len(list) != 0 {
			t.Errorf("expected empty non-nil list, got %v", list)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetIndicator(ctx, "tenant-002", "large-transfer")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteIndicator(ctx, tenantID, "large-transfer"); err != nil {
			t.Fatalf("DeleteIndicator failed: %v", err)
		}
		if _, err := repo.GetIndicator(ctx, tenantID, "large-transfer"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}
		if err := repo.DeleteIndicator(ctx, tenantID, "large-transfer"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		ind := &domain.Indicator{ID: "x", Label: "X", Expression: "is_night"}
		if err := repo.SaveIndicator(ctx, "", ind); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetIndicator(ctx, "", "x"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.ListIndicators(ctx, ""); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := repo.DeleteIndicator(ctx, "", "x"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("RejectsIncompleteIndicator", func(t *testing.T) {
		for _, ind := range []*domain.Indicator{
			nil,
			{Label: "no id", Expression: "is_night"},
			{ID: "no-label", Expression: "is_night"},
			{ID: "no-expr", Label: "No expression"},
		} {
			if err := repo.SaveIndicator(ctx, tenantID, ind); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput for %+v, got %v", ind, err)
			}
		}
	})
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	ind := &domain.Indicator{ID: "mem", Label: "Memory", Expression: "is_night", Enabled: true}
	if err := repo.SaveIndicator(ctx, "t1", ind); err != nil {
		t.Fatalf("SaveIndicator failed: %v", err)
	}
	if _, err := repo.GetIndicator(ctx, "t1", "mem"); err != nil {
		t.Errorf("GetIndicator failed: %v", err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		if result := repo.rebind(tt.input); result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	got := postgresDSN(domain.RepositoryConfig{PostgresUser: "kestrel", PostgresPassword: "p w'd"})
	want := `host=localhost port=5432 user=kestrel password='p w\'d' dbname=kestrel sslmode=disable`
	if got != want {
		t.Errorf("postgresDSN = %q, want %q", got, want)
	}

	got = postgresDSN(domain.RepositoryConfig{
		PostgresHost: "db", PostgresPort: 6543, PostgresUser: "u",
		PostgresPassword: "secret", PostgresDB: "fraud", PostgresSSLMode: "require",
	})
	want = "host=db port=6543 user=u password=secret dbname=fraud sslmode=require"
	if got != want {
		t.Errorf("postgresDSN = %q, want %q", got, want)
	}
}
