package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/cloudblog-api/pkg/jobs"
)

// CodeDeliveryJob is the job type for verification code deliveries.
const CodeDeliveryJob = "code_delivery"

// CodeDelivery is the payload of a code delivery job.
type CodeDelivery struct {
	Identifier string
	Code       string
	Type       string
}

// NewCodeDeliveryHandler returns the worker handler for code deliveries. No mail or SMS
// provider is configured, so codes are written to the log.
func NewCodeDeliveryHandler(logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		delivery, ok := job.Payload.(CodeDelivery)
		if !ok {
			return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
		}
		logger.Info("verification code issued",
			zap.String("job_id", job.ID),
			zap.String("identifier", delivery.Identifier),
			zap.String("type", delivery.Type),
			zap.String("code", delivery.Code),
		)
		return nil
	}
}
