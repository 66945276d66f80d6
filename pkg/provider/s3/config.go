// Package s3 lists and inspects objects in AWS S3 and S3-compatible stores.
package s3

// Config configures an S3 client.
//
// Credentials resolve in this order: AccessKeyID/SecretAccessKey, then the
// SDK default chain (environment, shared files honoring Profile, then
// instance or task roles). Region falls back to us-east-1 for AWS only;
// with an Endpoint set the region is passed through unchanged.
type Config struct {
	// Bucket binds a Provider built by New. NewOpener ignores it.
	Bucket string

	Region string

	// Endpoint targets an S3-compatible store, e.g. http://localhost:9000.
	Endpoint string

	// Profile selects a shared config profile, such as a SAML/SSO login.
	Profile string

	// AccessKeyID and SecretAccessKey must be set together.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the URL path. Most S3-compatible
	// stores and local emulators need it.
	ForcePathStyle bool

	// MaxKeys is the list page size, clamped to MaxAllowedKeys.
	// Zero means DefaultMaxKeys.
	MaxKeys int
}

const (
	DefaultMaxKeys    = 1000
	MaxAllowedKeys    = 1000
	DefaultAWSRegion  = "us-east-1"
	credentialsFields = "AccessKeyID/SecretAccessKey"
)

// Validate checks the configuration for New.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	return c.validateCredentials()
}

func (c *Config) validateCredentials() error {
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return &ConfigError{
			Field:   credentialsFields,
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
