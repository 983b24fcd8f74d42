package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	securitySecretKeyVault = "vault_sealing_key"
	securitySecretKeyJWT   = "jwt_secret"

	secretReadRetryMax  = 5
	secretReadRetryWait = 10 * time.Millisecond
)

var readRandomBytes = rand.Read

// EnsureVaultSealingKey returns the 32-byte vault sealing key, generating and
// persisting one on first boot. The key lives in the database rather than
// config so every instance of the service seals and opens with the same key
// without operators having to distribute it.
func EnsureVaultSealingKey(ctx context.Context, db *sql.DB, configured string) ([]byte, error) {
	configured = strings.TrimSpace(configured)
	if configured != "" {
		key, err := decodeSealingKey(configured)
		if err != nil {
			return nil, err
		}
		stored, err := createSecretIfAbsent(ctx, db, securitySecretKeyVault, configured)
		if err != nil {
			return nil, fmt.Errorf("persist vault sealing key: %w", err)
		}
		if stored != configured {
			// The persisted key wins: material already sealed with it would
			// be unreadable under the configured one.
			return decodeSealingKey(stored)
		}
		return key, nil
	}

	stored, _, err := getOrCreateGeneratedSecret(ctx, db, securitySecretKeyVault, 32)
	if err != nil {
		return nil, fmt.Errorf("ensure vault sealing key: %w", err)
	}
	return decodeSealingKey(stored)
}

// EnsureJWTSecret resolves the shared JWT signing secret the same way.
func EnsureJWTSecret(ctx context.Context, db *sql.DB, configured string) (string, error) {
	configured = strings.TrimSpace(configured)
	if configured != "" {
		stored, err := createSecretIfAbsent(ctx, db, securitySecretKeyJWT, configured)
		if err != nil {
			return "", fmt.Errorf("persist jwt secret: %w", err)
		}
		return stored, nil
	}
	stored, _, err := getOrCreateGeneratedSecret(ctx, db, securitySecretKeyJWT, 32)
	if err != nil {
		return "", fmt.Errorf("ensure jwt secret: %w", err)
	}
	return stored, nil
}

func decodeSealingKey(value string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("vault sealing key must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault sealing key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// getOrCreateGeneratedSecret reads the secret, generating one under
// ON CONFLICT DO NOTHING when absent. Two instances racing the first boot
// both end up with whichever value won the insert.
func getOrCreateGeneratedSecret(ctx context.Context, db *sql.DB, key string, byteLength int) (string, bool, error) {
	existing, err := querySecret(ctx, db, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, err
	}

	generated, err := generateHexSecret(byteLength)
	if err != nil {
		return "", false, err
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO security_secrets (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, generated); err != nil {
		return "", false, err
	}

	stored, err := querySecretWithRetry(ctx, db, key)
	if err != nil {
		return "", false, err
	}
	return stored, stored == generated, nil
}

func createSecretIfAbsent(ctx context.Context, db *sql.DB, key, value string) (string, error) {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO security_secrets (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, value); err != nil {
		return "", err
	}
	return querySecretWithRetry(ctx, db, key)
}

func querySecret(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `
		SELECT value FROM security_secrets WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// querySecretWithRetry covers the window between a DO NOTHING insert losing
// the race and the winner's row becoming visible.
func querySecretWithRetry(ctx context.Context, db *sql.DB, key string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= secretReadRetryMax; attempt++ {
		value, err := querySecret(ctx, db, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		lastErr = err
		if attempt == secretReadRetryMax {
			break
		}

		timer := time.NewTimer(secretReadRetryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}

func generateHexSecret(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = 32
	}
	buf := make([]byte, byteLength)
	if _, err := readRandomBytes(buf); err != nil {
		return "", fmt.Errorf("generate random secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
