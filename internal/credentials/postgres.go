package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tfgate/tfgate/internal/toolerr"
)

// PostgresSource reads encrypted credential rows from Postgres and
// decrypts them with the store master key. Rows are written by the
// account-management surface, which is outside this service.
type PostgresSource struct {
	pool *pgxpool.Pool
	key  *[keySize]byte
}

// NewPostgresSource connects to the credential store.
func NewPostgresSource(ctx context.Context, dsn string, key *[keySize]byte) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to credential store: %w", err)
	}
	return &PostgresSource{pool: pool, key: key}, nil
}

const fetchQuery = `
SELECT nonce, ciphertext
FROM credentials
WHERE user_id = $1 AND provider = $2 AND is_active
ORDER BY is_default DESC, created_at DESC
LIMIT 1`

// Fetch returns the newest active credential row for (user, provider),
// preferring the default row.
func (s *PostgresSource) Fetch(ctx context.Context, userID, provider string) (*Material, error) {
	var nonce, ciphertext []byte
	err := s.pool.QueryRow(ctx, fetchQuery, userID, provider).Scan(&nonce, &ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, toolerr.New(toolerr.KindCredentialUnavailable, "no stored credentials for provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential store: %w", err)
	}

	m, err := Open(s.key, nonce, ciphertext)
	if err != nil {
		// Decryption failure means the row is unusable, not that the
		// store is down.
		return nil, toolerr.New(toolerr.KindCredentialUnavailable, "stored credentials could not be decrypted")
	}
	if m.Provider == "" {
		m.Provider = provider
	}
	return m, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}
