package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/agency-leads/internal/config"
	"github.com/wolfman30/agency-leads/internal/followup"
	"github.com/wolfman30/agency-leads/internal/sequences"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// BuildQueue returns the follow-up job queue. The memory queue is only valid
// when the dispatcher and workers run in the same process.
func BuildQueue(cfg *appconfig.Config, awsCfg *aws.Config) (followup.Queue, error) {
	if cfg.UseMemoryQueue {
		return followup.NewMemoryQueue(cfg.FollowupBatchSize * 4), nil
	}
	if strings.TrimSpace(cfg.FollowupQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: FOLLOWUP_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
	}
	if awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: AWS config is required for the SQS queue")
	}
	return followup.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.FollowupQueueURL), nil
}

// LoadCatalog returns the sequence catalog from SEQUENCES_FILE or the
// embedded default.
func LoadCatalog(cfg *appconfig.Config, logger *logging.Logger) (*sequences.Catalog, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if path := strings.TrimSpace(cfg.SequencesFile); path != "" {
		catalog, err := sequences.LoadFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded sequence catalog", "path", path, "sequences", catalog.IDs())
		return catalog, nil
	}
	return sequences.Default()
}
