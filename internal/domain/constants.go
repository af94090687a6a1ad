package domain

import "time"

// ==== Room Constants ====

// MinParticipants is the smallest roster a room can be matched with
const MinParticipants = 2

// MaxNameLength is the maximum participant name length in runes
const MaxNameLength = 64

// MaxWishLength is the maximum wish length in runes
const MaxWishLength = 280

// RoomIDBytes is the entropy of a server-generated room id (hex encoded)
const RoomIDBytes = 12

// CreatorTokenBytes is the entropy of a creator capability token (hex encoded)
const CreatorTokenBytes = 32

// ==== WebSocket Constants ====

// MaxMessageSize is the maximum allowed WebSocket message size in bytes
const MaxMessageSize = 4096

// SubscriberBuffer is the number of events queued per subscriber before it is dropped
const SubscriberBuffer = 256

// ==== Rate Limit Constants ====

const (
	// DefaultRateLimitAPI is the default rate limit for API endpoints (requests/sec)
	DefaultRateLimitAPI = 10

	// DefaultRateLimitWS is the default rate limit for WebSocket connections (req/sec)
	DefaultRateLimitWS = 5

	// DefaultRateLimitStrict is the stricter rate limit for room creation and matching
	DefaultRateLimitStrict = 2
)

// ==== Timing Constants ====

const (
	// HubGracePeriod is the time to wait before tearing down a room hub with no subscribers
	HubGracePeriod = 60 * time.Second

	// MatchAttempts bounds how often a match is recomputed when the roster moves underneath it
	MatchAttempts = 3

	// JoinAttempts bounds store transaction retries for a single join
	JoinAttempts = 5

	// CreateAttempts bounds room id regeneration on collision
	CreateAttempts = 3
)
