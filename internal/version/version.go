// ABOUTME: Build identification constants
// ABOUTME: Product name and version reported to the generation service
package version

const (
	Product      = "Soundrift Console"
	Manufacturer = "Soundrift"
	Version      = "0.3.0"
)
