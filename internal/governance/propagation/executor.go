package propagation

import (
	"context"
	"fmt"

	"qmsgov/internal/broker"
	"qmsgov/internal/retry"

	"go.uber.org/zap"
)

// BrokerExecutor publishes commands to the broker for the owning
// modules to apply
type BrokerExecutor struct {
	publisher broker.Publisher
	topic     string
	retry     *retry.Config
	logger    *zap.Logger
}

// NewBrokerExecutor creates new broker executor
func NewBrokerExecutor(publisher broker.Publisher, topic string, retryCfg *retry.Config, logger *zap.Logger) *BrokerExecutor {
	return &BrokerExecutor{
		publisher: publisher,
		topic:     topic,
		retry:     retryCfg,
		logger:    logger,
	}
}

// Execute publishes cmd keyed by change event, retrying per the policy
func (x *BrokerExecutor) Execute(ctx context.Context, cmd *Command) error {
	msg, err := broker.NewJSONMessage(x.topic, cmd.ChangeEventID, cmd)
	if err != nil {
		return err
	}
	msg.Headers["target-action"] = cmd.TargetAction
	msg.Headers["target-entity-type"] = string(cmd.TargetEntityType)

	err = retry.Execute(ctx, x.retry, x.logger, func(ctx context.Context) error {
		return x.publisher.Publish(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish propagation command: %w", err)
	}

	x.logger.Debug("Propagation command published",
		zap.String("change_event_id", cmd.ChangeEventID),
		zap.String("rule_id", cmd.RuleID),
		zap.String("broker", x.publisher.Name()))
	return nil
}
