// ABOUTME: Product and version strings
// ABOUTME: Reported by the CLIs and sent to bridge hosts
package version

const (
	Version      = "0.3.0"
	Product      = "pepperaudio"
	Manufacturer = "Resonate Protocol"
)

// String returns the product and version as printed by -version
func String() string {
	return Product + " " + Version
}
