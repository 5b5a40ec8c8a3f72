package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/agency-leads/internal/config"
	"github.com/wolfman30/agency-leads/internal/followup"
	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/notify"
	"github.com/wolfman30/agency-leads/internal/ratelimit"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

func baseConfig() *appconfig.Config {
	return &appconfig.Config{
		RateLimitBackend:  "memory",
		ContactRateLimit:  5,
		ContactRateWindow: 15 * time.Minute,
		APIRatePerSecond:  10,
		APIRateBurst:      20,
		EmailProvider:     "auto",
		EmailFromAddress:  "hello@northpeak.dev",
		EmailFromName:     "Northpeak Digital",
		FollowupBatchSize: 25,
	}
}

func TestBuildRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cfg := baseConfig()

	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Discard(), true), "no addr disables redis")

	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Discard(), true), "failed ping returns nil")
}

func TestBuildEmailSender(t *testing.T) {
	awsCfg := aws.Config{Region: "us-east-1"}
	tests := []struct {
		name     string
		mutate   func(*appconfig.Config)
		aws      *aws.Config
		provider string
	}{
		{"disabled", func(c *appconfig.Config) { c.EmailProvider = "disabled"; c.SendGridAPIKey = "SG.x" }, nil, ProviderNone},
		{"auto without key", func(c *appconfig.Config) {}, nil, ProviderNone},
		{"auto with key", func(c *appconfig.Config) { c.SendGridAPIKey = "SG.x" }, nil, ProviderSendGrid},
		{"ses", func(c *appconfig.Config) { c.EmailProvider = "ses" }, &awsCfg, ProviderSES},
		{"ses without aws", func(c *appconfig.Config) { c.EmailProvider = "ses" }, nil, ProviderNone},
		{"stub", func(c *appconfig.Config) { c.EmailProvider = "stub" }, nil, ProviderStub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			sender, provider := BuildEmailSender(cfg, tt.aws, logging.Discard())
			assert.Equal(t, tt.provider, provider)
			if tt.provider == ProviderNone {
				assert.True(t, sender == nil, "unconfigured sender must be a nil interface")
			} else {
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestBuildLimiter(t *testing.T) {
	cfg := baseConfig()
	limiter, closeFn, err := BuildLimiter(cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.MemoryLimiter{}, limiter)
	assert.NoError(t, closeFn())

	cfg.RateLimitBackend = "redis"
	_, _, err = BuildLimiter(cfg, nil, logging.Discard())
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), false)
	t.Cleanup(func() { _ = client.Close() })
	limiter, _, err = BuildLimiter(cfg, client, logging.Discard())
	require.NoError(t, err)
	decision, err := limiter.CheckLimit(context.Background(), "contact-form:192.0.2.1", ratelimit.ContactFormBucket)
	require.NoError(t, err)
	assert.False(t, decision.Limited)

	cfg.RateLimitBackend = "carrier-pigeon"
	_, _, err = BuildLimiter(cfg, nil, logging.Discard())
	assert.Error(t, err)
}

func TestBuildQueue(t *testing.T) {
	cfg := baseConfig()
	_, err := BuildQueue(cfg, nil)
	assert.Error(t, err, "sqs requires a queue url")

	cfg.FollowupQueueURL = "https://sqs.us-east-1.amazonaws.com/123/followups"
	_, err = BuildQueue(cfg, nil)
	assert.Error(t, err, "sqs requires aws config")

	q, err := BuildQueue(cfg, &aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &followup.SQSQueue{}, q)

	cfg.UseMemoryQueue = true
	q, err = BuildQueue(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &followup.MemoryQueue{}, q)
}

func TestLoadCatalog(t *testing.T) {
	cfg := baseConfig()
	catalog, err := LoadCatalog(cfg, logging.Discard())
	require.NoError(t, err)
	assert.Contains(t, catalog.IDs(), "hot-lead")

	cfg.SequencesFile = "/does/not/exist.yaml"
	_, err = LoadCatalog(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestBuildPipelineWithoutEmailIsTestMode(t *testing.T) {
	cfg := baseConfig()
	cfg.AdminEmails = []string{"ops@northpeak.dev"}
	sender, _ := BuildEmailSender(cfg, nil, logging.Discard())

	p := BuildPipeline(cfg, PipelineParts{Email: sender, Leads: leads.NewInMemoryRepository()}, logging.Discard())
	assert.False(t, p.EmailConfigured())
}

func TestBuildPipelineWithEmail(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailProvider = "stub"
	cfg.AdminEmails = []string{"ops@northpeak.dev"}
	sender, provider := BuildEmailSender(cfg, nil, logging.Discard())
	require.Equal(t, ProviderStub, provider)

	p := BuildPipeline(cfg, PipelineParts{Email: sender}, logging.Discard())
	assert.True(t, p.EmailConfigured())

	cfg.AdminEmails = nil
	p = BuildPipeline(cfg, PipelineParts{Email: sender}, logging.Discard())
	assert.False(t, p.EmailConfigured(), "no recipients means no admin notifier")
}

func TestConnectPoolRejectsBadURL(t *testing.T) {
	_, err := ConnectPool(context.Background(), "", ConnectOptions{}, logging.Discard())
	assert.Error(t, err)
	_, err = ConnectPool(context.Background(), "postgres://%zz", ConnectOptions{}, logging.Discard())
	assert.Error(t, err)
}

var _ notify.EmailSender = (*notify.StubEmailSender)(nil)
