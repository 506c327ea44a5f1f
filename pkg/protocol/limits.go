package protocol

const (
	// DefaultMaxPacketSize is the default upper bound on an encoded packet (1MB).
	DefaultMaxPacketSize = 1 << 20

	// HardMaxPacketSize is the largest payload Decode accepts (16MB).
	// Configured read limits above it are clamped.
	HardMaxPacketSize = 16 << 20
)

// ClampPacketSize returns n limited to (0, HardMaxPacketSize]. Non-positive
// values select DefaultMaxPacketSize.
func ClampPacketSize(n int64) int64 {
	if n <= 0 {
		return DefaultMaxPacketSize
	}
	if n > HardMaxPacketSize {
		return HardMaxPacketSize
	}
	return n
}
