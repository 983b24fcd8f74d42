package repository

import (
	"context"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketopshq/connecthub/internal/service"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/chacha20poly1305"
)

const vaultKeyPrefix = "connecthub:vault:"

// redisSecretVault implements service.SecretVault on Redis. Token material is
// sealed with XChaCha20-Poly1305 before it leaves the process, so a Redis
// dump alone never yields usable credentials. References are opaque UUIDs;
// the business store only ever sees those.
type redisSecretVault struct {
	rdb  redis.UniversalClient
	aead cipher.AEAD
}

// NewRedisSecretVault creates the vault. sealingKey must be exactly 32 bytes.
func NewRedisSecretVault(rdb redis.UniversalClient, sealingKey []byte) (service.SecretVault, error) {
	aead, err := chacha20poly1305.NewX(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("init vault cipher: %w", err)
	}
	return &redisSecretVault{rdb: rdb, aead: aead}, nil
}

func (v *redisSecretVault) Put(ctx context.Context, material *service.TokenMaterial) (string, error) {
	ref := "sec_" + uuid.NewString()
	if err := v.write(ctx, ref, material); err != nil {
		return "", err
	}
	return ref, nil
}

func (v *redisSecretVault) Get(ctx context.Context, ref string) (*service.TokenMaterial, error) {
	sealed, err := v.rdb.Get(ctx, vaultKeyPrefix+ref).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault read: %w", err)
	}
	return v.open(ref, sealed)
}

func (v *redisSecretVault) Update(ctx context.Context, ref string, material *service.TokenMaterial) error {
	return v.write(ctx, ref, material)
}

func (v *redisSecretVault) Delete(ctx context.Context, ref string) error {
	// DEL on an absent key is a no-op, which gives Delete its idempotency.
	if err := v.rdb.Del(ctx, vaultKeyPrefix+ref).Err(); err != nil {
		return fmt.Errorf("vault delete: %w", err)
	}
	return nil
}

func (v *redisSecretVault) write(ctx context.Context, ref string, material *service.TokenMaterial) error {
	sealed, err := seal(v.aead, ref, material)
	if err != nil {
		return err
	}
	if err := v.rdb.Set(ctx, vaultKeyPrefix+ref, sealed, 0).Err(); err != nil {
		return fmt.Errorf("vault write: %w", err)
	}
	return nil
}

func (v *redisSecretVault) open(ref, sealed string) (*service.TokenMaterial, error) {
	return open(v.aead, ref, sealed)
}

// seal encrypts material for storage. The reference is bound in as
// additional data, so a sealed blob copied under another reference fails to
// open.
func seal(aead cipher.AEAD, ref string, material *service.TokenMaterial) (string, error) {
	plaintext, err := json.Marshal(material)
	if err != nil {
		return "", fmt.Errorf("encode token material: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := readRandomBytes(nonce); err != nil {
		return "", fmt.Errorf("vault nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, []byte(ref))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func open(aead cipher.AEAD, ref, sealed string) (*service.TokenMaterial, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed material: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed material too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(ref))
	if err != nil {
		return nil, fmt.Errorf("open sealed material: %w", err)
	}
	var material service.TokenMaterial
	if err := json.Unmarshal(plaintext, &material); err != nil {
		return nil, fmt.Errorf("decode token material: %w", err)
	}
	return &material, nil
}
