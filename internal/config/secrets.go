package config

import "slices"

// Redacted returns a copy of c with secrets replaced by "***", for logging
// the active configuration.
func (c *Config) Redacted() Config {
	out := *c

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	out.Server.CORSOrigins = slices.Clone(c.Server.CORSOrigins)
	out.Server.APIKeys = slices.Clone(c.Server.APIKeys)
	for i := range out.Server.APIKeys {
		redact(&out.Server.APIKeys[i])
	}
	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
