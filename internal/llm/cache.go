package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

// VisionCache stores identification results by image hash.
type VisionCache interface {
	GetVisionCache(imageHash string) (*storage.VisionCacheEntry, error)
	SetVisionCache(imageHash string, entry *storage.VisionCacheEntry) error
}

// CachedIdentifier wraps an Identifier with a persistent cache. Cache
// failures are logged and never fail the identification.
type CachedIdentifier struct {
	inner Identifier
	cache VisionCache
}

// NewCachedIdentifier creates a cached identifier. A nil cache disables
// caching.
func NewCachedIdentifier(inner Identifier, cache VisionCache) *CachedIdentifier {
	return &CachedIdentifier{inner: inner, cache: cache}
}

// hashImages creates a SHA256 hash from image data.
// Includes length prefix for each image to prevent boundary collisions.
func hashImages(images [][]byte) string {
	h := sha256.New()
	for _, img := range images {
		// [A,B] and [AB] must hash differently
		binary.Write(h, binary.LittleEndian, int64(len(img)))
		h.Write(img)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Identify implements Identifier.
func (c *CachedIdentifier) Identify(ctx context.Context, images [][]byte) (*listing.ItemIdentification, error) {
	hash := hashImages(images)

	if c.cache != nil {
		cached, err := c.cache.GetVisionCache(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check vision cache")
		} else if cached != nil {
			ident := listing.ItemIdentification{Description: cached.Description, Category: cached.Category}
			if ident.Complete() {
				log.Debug().Str("hash", hash[:16]).Msg("vision cache hit")
				return &ident, nil
			}
		}
	}

	ident, err := c.inner.Identify(ctx, images)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		entry := &storage.VisionCacheEntry{Description: ident.Description, Category: ident.Category}
		if err := c.cache.SetVisionCache(hash, entry); err != nil {
			log.Warn().Err(err).Msg("failed to cache vision result")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached vision result")
		}
	}

	return ident, nil
}
