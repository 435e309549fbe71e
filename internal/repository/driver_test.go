package repository

import (
	"net/url"
	"strings"
	"testing"

	"github.com/opensource-finance/shamba/internal/domain"
)

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/var/lib/shamba/shamba.db")

	path, query, ok := strings.Cut(dsn, "?")
	if !ok {
		t.Fatalf("expected query string in %q", dsn)
	}
	if path != "file:/var/lib/shamba/shamba.db" {
		t.Errorf("unexpected path: %s", path)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("ParseQuery failed: %v", err)
	}
	pragmas := values["_pragma"]
	if len(pragmas) != len(sqlitePragmas) {
		t.Fatalf("expected %d pragmas, got %v", len(sqlitePragmas), pragmas)
	}
	if pragmas[0] != "journal_mode(WAL)" {
		t.Errorf("expected WAL pragma first, got %s", pragmas[0])
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		got := postgresDSN(domain.RepositoryConfig{Driver: "postgres", PostgresUser: "shamba"})
		want := "host='localhost' port='5432' user='shamba' dbname='shamba' sslmode='disable'"
		if got != want {
			t.Errorf("got %s, want %s", got, want)
		}
	})

	t.Run("QuotesPassword", func(t *testing.T) {
		got := postgresDSN(domain.RepositoryConfig{
			Driver:           "postgres",
			PostgresHost:     "db.internal",
			PostgresPort:     6432,
			PostgresUser:     "scorer",
			PostgresPassword: `it's a p\ss`,
			PostgresDB:       "credit",
			PostgresSSLMode:  "require",
		})
		if !strings.Contains(got, `password='it\'s a p\\ss'`) {
			t.Errorf("password not quoted: %s", got)
		}
		if !strings.Contains(got, "port='6432'") || !strings.Contains(got, "sslmode='require'") {
			t.Errorf("unexpected dsn: %s", got)
		}
	})
}

func TestDataSource(t *testing.T) {
	name, dsn, err := dataSource(domain.RepositoryConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("dataSource failed: %v", err)
	}
	if name != "sqlite" || !strings.HasPrefix(dsn, "file:"+defaultSQLitePath) {
		t.Errorf("unexpected sqlite source: %s %s", name, dsn)
	}

	if _, _, err := dataSource(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
