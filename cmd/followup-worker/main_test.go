package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/agency-leads/internal/config"
)

func TestCheckConfig(t *testing.T) {
	base := func() *appconfig.Config {
		return &appconfig.Config{
			Env:               "development",
			RateLimitBackend:  "memory",
			EmailProvider:     "stub",
			EmailFromAddress:  "hello@northpeak.dev",
			AdminEmails:       []string{"ops@northpeak.dev"},
			ContactRateLimit:  5,
			ContactRateWindow: time.Hour,
			DatabaseURL:       "postgres://localhost/agency",
			UseMemoryQueue:    true,
		}
	}

	require.NoError(t, checkConfig(base()))

	noDB := base()
	noDB.DatabaseURL = ""
	assert.ErrorIs(t, checkConfig(noDB), errNoDatabase)

	noEmail := base()
	noEmail.EmailProvider = "none"
	assert.ErrorIs(t, checkConfig(noEmail), errNoEmail)
}
