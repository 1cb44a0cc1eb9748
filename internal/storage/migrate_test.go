package storage

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateHandleOwnership(t *testing.T) {
	tests := []struct {
		name       string
		driver     string
		dsn        string
		migrateAs  string
		wantErr    bool
		wantClosed bool
	}{
		{
			name:       "unreachable postgres handle is closed",
			driver:     "postgres",
			dsn:        "host=127.0.0.1 port=1 user=quizgen dbname=quizgen sslmode=disable connect_timeout=1",
			migrateAs:  "postgres",
			wantErr:    true,
			wantClosed: true,
		},
		{
			name:      "sqlite handle stays open",
			driver:    "sqlite3",
			dsn:       ":memory:",
			migrateAs: "sqlite3",
		},
		{
			name:      "unsupported driver leaves handle open",
			driver:    "sqlite3",
			dsn:       ":memory:",
			migrateAs: "mysql",
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := sql.Open(tt.driver, tt.dsn)
			require.NoError(t, err)
			defer db.Close()

			err = Migrate(db, tt.migrateAs)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			if tt.wantClosed {
				assert.ErrorContains(t, db.Ping(), "database is closed")
			} else {
				assert.NoError(t, db.Ping())
			}
		})
	}
}
