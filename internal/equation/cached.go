package equation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/spherical/quizgen/internal/cache"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

// CachedConverter memoises successful conversions. Failures are not cached
// so a transient pandoc error is retried on the next occurrence.
type CachedConverter struct {
	inner  domain.EquationConverter
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedConverter wraps inner with the given cache.
func NewCachedConverter(inner domain.EquationConverter, c cache.Client, ttl time.Duration, logger *observability.Logger) *CachedConverter {
	if logger == nil {
		logger = observability.Nop()
	}
	return &CachedConverter{inner: inner, cache: c, ttl: ttl, logger: logger}
}

// ToEquationObject implements domain.EquationConverter.
func (c *CachedConverter) ToEquationObject(ctx context.Context, span string) *domain.EquationObject {
	key := cacheKey(span)

	data, err := c.cache.Get(ctx, key)
	if err == nil {
		return &domain.EquationObject{Source: span, OMML: string(data)}
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Debug().Err(err).Msg("Equation cache read failed")
	}

	obj := c.inner.ToEquationObject(ctx, span)
	if obj == nil {
		return nil
	}
	if err := c.cache.Set(ctx, key, []byte(obj.OMML), c.ttl); err != nil {
		c.logger.Debug().Err(err).Msg("Equation cache write failed")
	}
	return obj
}

func cacheKey(span string) string {
	sum := sha256.Sum256([]byte(Normalize(span)))
	return cache.Key("eq", hex.EncodeToString(sum[:]))
}
