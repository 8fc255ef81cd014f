// Package cache stores converted documents in Redis keyed by input content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pdf2docx/internal/domain"
)

const (
	keyPrefix  = "docxcache:"
	opTimeout  = time.Second
	defaultTTL = time.Minute
)

// Results is a Redis-backed converted-result cache.
type Results struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache using rdb. A non-positive ttl falls back to one minute.
func New(rdb *redis.Client, ttl time.Duration) *Results {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Results{rdb: rdb, ttl: ttl}
}

// KeyForFile hashes the file at path together with the page range.
func KeyForFile(path string, pages domain.PageRange) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	h.Write([]byte(strconv.Itoa(pages.Start)))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.Itoa(pages.End)))
	return keyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached document, or nil with no error on a miss.
func (r *Results) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set stores data under key with the configured TTL.
func (r *Results) Set(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.rdb.Set(ctx, key, data, r.ttl).Err()
}
