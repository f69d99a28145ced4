package rwfs

// FormatVersion is the container format version written into the header
// by Blank and checked (loosely — this package accepts any version it
// can decode) by Open.
const FormatVersion uint32 = 0

// Version constants for this module, independent of FormatVersion.
const (
	Major = 0
	Minor = 1
	Patch = 0
)

// Version returns the module's version string.
func Version() string {
	return "rwfs 0.1.0 (single-file fragment store)"
}
