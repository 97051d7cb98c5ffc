package constants

const (
	// IDRandomBytes is the entropy behind prefixed record IDs (hex-encoded).
	IDRandomBytes = 12

	// OpaqueTokenBytes is the entropy behind stream/play/refresh tokens.
	OpaqueTokenBytes = 32
)

const (
	PointsCostAnnual   = 1
	PointsCostLifetime = 2
)
