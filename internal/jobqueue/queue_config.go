/*
Package jobqueue configuration - tunable parameters for the River job queue.

## Quick Configuration Reference:

### Performance Tuning:
- Increase MaxWorkers for higher throughput (more concurrent analysis/OCR jobs)
- Adjust MaxRetries for different reliability vs. speed tradeoffs

### Resource Management:
- Lower MaxWorkers to reduce database connection usage
- Analysis jobs hold an LLM request for their whole duration, so keep
  MaxWorkers at or below the provider's concurrency allowance

## Monitoring and Debugging:
- Job status can be monitored via River's built-in job tracking
- Failed jobs retain error information in the River jobs table
*/
package jobqueue

import (
	"os"
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent workers processing jobs (default: 5)

	// Retry Configuration
	MaxRetries int           // Maximum retry attempts per job (default: 10)
	JobTimeout time.Duration // Maximum time a single job can run (default: 5 minutes)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		// Analysis jobs are LLM-bound; OCR jobs are cheap. Five workers
		// keeps provider rate limits comfortable for a single instance.
		MaxWorkers: 5,

		MaxRetries: 10,
		JobTimeout: 5 * time.Minute,
	}
}

// DevelopmentQueueConfig returns a configuration optimized for development
func DevelopmentQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()

	config.MaxWorkers = 2               // Fewer workers to reduce resource usage
	config.MaxRetries = 3               // Fail faster in development
	config.JobTimeout = 2 * time.Minute // Shorter timeout for faster feedback

	return config
}

// GetQueueConfig returns the appropriate configuration based on environment
func GetQueueConfig() *QueueConfig {
	if os.Getenv("SETTLELINE_ENV") == "development" {
		return DevelopmentQueueConfig()
	}
	return DefaultQueueConfig()
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
