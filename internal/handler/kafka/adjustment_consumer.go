package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
	"ledger/internal/domain/event"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/util"
)

// adjustmentEnvelope defers amount parsing so that a bad amount still yields
// a REJECTED result addressed to the right command.
type adjustmentEnvelope struct {
	CommandID string          `json:"commandId"`
	AccountID string          `json:"accountId"`
	Amount    json.RawMessage `json:"amount"`
}

// AdjustmentMessageHandler applies AdjustmentCommands and publishes one
// AdjustmentResult per command to resultsTopic.
//
// Each command is applied at most once per commandId, so a redelivered
// command is answered with a DUPLICATE result instead of being applied
// again. A command without an id gets one derived from its topic, partition
// and offset, which is stable across redeliveries.
//
// Undecodable messages are skipped. Business rejections are published and
// committed. Internal failures and failed publishes are returned so the
// message is redelivered.
func AdjustmentMessageHandler(
	ledgerService ledger.LedgerService,
	producer kafka_infra.Producer,
	resultsTopic string,
	logger *zap.Logger,
) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var envelope adjustmentEnvelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			logger.Error("Failed to unmarshal Kafka message value to AdjustmentCommand",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		cmd, err := decodeCommand(envelope, msg)
		if err != nil {
			if _, ok := domain.AsBusiness(err); !ok {
				return err
			}
			return publish(ctx, producer, resultsTopic, rejected(cmd, err), logger)
		}

		logger.Info("Processing AdjustmentCommand",
			zap.String("command_id", cmd.CommandID),
			zap.String("account_id", cmd.AccountID),
			zap.String("amount", cmd.Amount.String()),
		)

		balance, err := ledgerService.ApplyAdjustment(ctx, cmd.CommandID, cmd.AccountID, *cmd.Amount)
		if errors.Is(err, domain.ErrCommandAlreadyApplied) {
			return publishDuplicate(ctx, ledgerService, producer, resultsTopic, cmd, logger)
		}
		if err != nil {
			if _, ok := domain.AsBusiness(err); ok {
				logger.Info("AdjustmentCommand rejected",
					zap.String("command_id", cmd.CommandID),
					zap.String("account_id", cmd.AccountID),
					zap.String("reason", err.Error()),
				)
				return publish(ctx, producer, resultsTopic, rejected(cmd, err), logger)
			}
			return fmt.Errorf("failed to apply adjustment command %s: %w", cmd.CommandID, err)
		}

		return publish(ctx, producer, resultsTopic, event.AdjustmentResult{
			CommandID: cmd.CommandID,
			AccountID: cmd.AccountID,
			Status:    event.AdjustmentApplied,
			Balance:   &balance,
			Timestamp: time.Now().UTC(),
		}, logger)
	}
}

// publishDuplicate answers a redelivered command with the current balance.
func publishDuplicate(
	ctx context.Context,
	ledgerService ledger.LedgerService,
	producer kafka_infra.Producer,
	topic string,
	cmd event.AdjustmentCommand,
	logger *zap.Logger,
) error {
	logger.Info("AdjustmentCommand already applied",
		zap.String("command_id", cmd.CommandID),
		zap.String("account_id", cmd.AccountID),
	)
	account, err := ledgerService.ReadAccount(ctx, cmd.AccountID)
	if err != nil {
		return fmt.Errorf("failed to read balance for duplicate command %s: %w", cmd.CommandID, err)
	}
	return publish(ctx, producer, topic, event.AdjustmentResult{
		CommandID: cmd.CommandID,
		AccountID: cmd.AccountID,
		Status:    event.AdjustmentDuplicate,
		Balance:   &account.Balance,
		Timestamp: time.Now().UTC(),
	}, logger)
}

// decodeCommand validates the envelope. The returned command carries the ids
// even when validation fails.
func decodeCommand(envelope adjustmentEnvelope, msg kafka.Message) (event.AdjustmentCommand, error) {
	cmd := event.AdjustmentCommand{
		CommandID: strings.TrimSpace(envelope.CommandID),
		AccountID: strings.TrimSpace(envelope.AccountID),
	}

	if cmd.CommandID == "" {
		cmd.CommandID = util.NameUUID(fmt.Sprintf("kafka://%s/%d/%d", msg.Topic, msg.Partition, msg.Offset))
	} else {
		id, err := util.CanonicalUUID(cmd.CommandID)
		if err != nil {
			return cmd, domain.Validation("invalid commandId")
		}
		cmd.CommandID = id
	}

	if err := domain.ValidateAccountID(cmd.AccountID); err != nil {
		return cmd, err
	}

	raw := strings.TrimSpace(string(envelope.Amount))
	if raw == "" || raw == "null" {
		return cmd, domain.Validation("amount is required")
	}
	var amount domain.Amount
	if err := json.Unmarshal(envelope.Amount, &amount); err != nil {
		if _, ok := domain.AsBusiness(err); ok {
			return cmd, err
		}
		return cmd, domain.Validation("invalid amount")
	}
	cmd.Amount = &amount
	return cmd, nil
}

func rejected(cmd event.AdjustmentCommand, err error) event.AdjustmentResult {
	return event.AdjustmentResult{
		CommandID: cmd.CommandID,
		AccountID: cmd.AccountID,
		Status:    event.AdjustmentRejected,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

func publish(ctx context.Context, producer kafka_infra.Producer, topic string, result event.AdjustmentResult, logger *zap.Logger) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal adjustment result %s: %w", result.CommandID, err)
	}
	if err := producer.Produce(ctx, result.AccountID, topic, payload); err != nil {
		return err
	}
	logger.Debug("Published AdjustmentResult",
		zap.String("command_id", result.CommandID),
		zap.String("status", string(result.Status)),
	)
	return nil
}
