// Package otp issues and verifies delivery one-time codes. Codes are held
// in Redis with a TTL and consumed on first successful verification.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

const codeLength = 6

// ErrNotIssued indicates no live code exists for the job.
var ErrNotIssued = errors.New("otp: no code issued")

// Store keeps delivery codes in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store. ttl bounds how long an issued code stays
// valid.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

func key(jobID int64) string {
	return fmt.Sprintf("delivery:otp:%d", jobID)
}

// Issue generates a fresh numeric code for the job, replacing any
// previous one.
func (s *Store) Issue(ctx context.Context, jobID int64) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, key(jobID), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("otp: store code: %w", err)
	}
	return code, nil
}

// Verify checks the presented code and consumes it on success. A wrong
// code leaves the stored code in place for retry within the TTL.
func (s *Store) Verify(ctx context.Context, jobID int64, presented string) (bool, error) {
	stored, err := s.client.Get(ctx, key(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, ErrNotIssued
	}
	if err != nil {
		return false, fmt.Errorf("otp: load code: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return false, nil
	}
	if err := s.client.Del(ctx, key(jobID)).Err(); err != nil {
		return false, fmt.Errorf("otp: consume code: %w", err)
	}
	return true, nil
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}
