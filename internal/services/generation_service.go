package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/models"
)

var (
	aiExecutor = gateway.NewExecutor()

	// StreamRegistry tracks live SSE relays so they can be cancelled by
	// stream id.
	StreamRegistry = gateway.NewRegistry()
)

// CallInput is one logical AI call as the business layer sees it.
type CallInput struct {
	UserID       uint
	ModelRef     string
	BusinessType string
	SystemPrompt string
	UserPrompt   string
	History      []gateway.Message
	Params       gateway.CallParams
	PromptID     *uint
}

func (in CallInput) messages() []gateway.Message {
	return BuildMessages(in.SystemPrompt, in.History, in.UserPrompt)
}

func consumeReason(businessType, modelName string) string {
	return fmt.Sprintf("ai call: %s via %s", businessType, modelName)
}

// ExecuteCall runs one buffered call end to end: resolve the model, verify
// the user can fund it, call the provider, then bill and record. An empty
// provider response is never billed.
func ExecuteCall(ctx context.Context, input CallInput) (*gateway.Result, *models.ModelConfig, error) {
	cfg, err := ResolveModel(input.ModelRef)
	if err != nil {
		return nil, nil, err
	}

	if ok, err := CanConsume(input.UserID, cfg.CreditCost); err != nil {
		return nil, cfg, err
	} else if !ok {
		return nil, cfg, gateway.ErrInsufficientCredits
	}

	start := time.Now()
	result, err := aiExecutor.Execute(ctx, cfg, input.messages(), input.Params)
	elapsed := time.Since(start)

	if err != nil {
		status := models.CallStatusError
		if gateway.ErrorType(err) == "timeout_error" {
			status = models.CallStatusTimeout
		}
		RecordCall(CallRecordInput{
			UserID:       input.UserID,
			BusinessType: input.BusinessType,
			Model:        cfg,
			PromptID:     input.PromptID,
			SystemPrompt: input.SystemPrompt,
			UserPrompt:   input.UserPrompt,
			Params:       input.Params,
			Status:       status,
			Elapsed:      elapsed,
			CallErr:      err,
		})
		return nil, cfg, err
	}

	if strings.TrimSpace(result.Content) == "" {
		RecordCall(CallRecordInput{
			UserID:       input.UserID,
			BusinessType: input.BusinessType,
			Model:        cfg,
			PromptID:     input.PromptID,
			SystemPrompt: input.SystemPrompt,
			UserPrompt:   input.UserPrompt,
			Params:       input.Params,
			Status:       models.CallStatusEmptyResponse,
			Usage:        result.Usage,
			Elapsed:      elapsed,
		})
		return nil, cfg, gateway.ErrEmptyResponse
	}

	settleCall(cfg, input)

	RecordCall(CallRecordInput{
		UserID:       input.UserID,
		BusinessType: input.BusinessType,
		Model:        cfg,
		PromptID:     input.PromptID,
		SystemPrompt: input.SystemPrompt,
		UserPrompt:   input.UserPrompt,
		Params:       input.Params,
		Status:       models.CallStatusSuccess,
		Content:      result.Content,
		Usage:        result.Usage,
		Elapsed:      elapsed,
	})

	return result, cfg, nil
}

// ExecuteStreamCall runs one streaming call: after the pre-flight checks the
// provider stream is opened with a background context, so a client
// disconnect stops the relay but not the upstream read that billing depends
// on. Blocks until the stream reaches a terminal state.
func ExecuteStreamCall(clientCtx context.Context, sink gateway.Sink, input CallInput, onDone func(gateway.Completion)) error {
	cfg, err := ResolveModel(input.ModelRef)
	if err != nil {
		return err
	}

	if ok, err := CanConsume(input.UserID, cfg.CreditCost); err != nil {
		return err
	} else if !ok {
		return gateway.ErrInsufficientCredits
	}

	start := time.Now()
	body, adapter, err := aiExecutor.OpenStream(context.Background(), cfg, input.messages(), input.Params)
	if err != nil {
		status := models.CallStatusError
		if gateway.ErrorType(err) == "timeout_error" {
			status = models.CallStatusTimeout
		}
		RecordCall(CallRecordInput{
			UserID:       input.UserID,
			BusinessType: input.BusinessType,
			Model:        cfg,
			PromptID:     input.PromptID,
			SystemPrompt: input.SystemPrompt,
			UserPrompt:   input.UserPrompt,
			Params:       input.Params,
			Status:       status,
			Elapsed:      time.Since(start),
			CallErr:      err,
		})
		return err
	}

	relay := gateway.NewRelay(uuid.New().String(), sink, adapter, StreamRegistry, func(c gateway.Completion) {
		settleStream(cfg, input, c)
		if onDone != nil {
			onDone(c)
		}
	})
	relay.Run(clientCtx, body)
	return nil
}

// CancelStream aborts a live stream by id. Content already produced is
// still billed and recorded by the stream's completion handler.
func CancelStream(streamID string) bool {
	return StreamRegistry.Abort(streamID)
}

// settleCall bills a successful buffered call. A billing failure at this
// point (a race past the pre-flight check) is logged, never surfaced: the
// content has already been produced.
func settleCall(cfg *models.ModelConfig, input CallInput) {
	if err := ConsumeCredits(input.UserID, cfg.CreditCost, consumeReason(input.BusinessType, cfg.Name), "system"); err != nil {
		zap.L().Error("billing failed for completed call",
			zap.Uint("user_id", input.UserID),
			zap.String("model", cfg.Name),
			zap.Error(err))
	}
	if err := TouchModelUsage(cfg.ID); err != nil {
		zap.L().Warn("failed to bump model usage", zap.Uint("model_id", cfg.ID), zap.Error(err))
	}
}

// settleStream is the exactly-once completion handler for a streaming call.
// Any produced content is billed, whatever ended the stream; an empty
// stream costs nothing. Failures here are logged and never propagated, the
// stream is already over.
func settleStream(cfg *models.ModelConfig, input CallInput, c gateway.Completion) {
	hasContent := strings.TrimSpace(c.Content) != ""

	if hasContent {
		if err := ConsumeCredits(input.UserID, cfg.CreditCost, consumeReason(input.BusinessType, cfg.Name), "system"); err != nil {
			zap.L().Error("billing failed for streamed call",
				zap.Uint("user_id", input.UserID),
				zap.String("model", cfg.Name),
				zap.String("reason", string(c.Reason)),
				zap.Error(err))
		}
		if err := TouchModelUsage(cfg.ID); err != nil {
			zap.L().Warn("failed to bump model usage", zap.Uint("model_id", cfg.ID), zap.Error(err))
		}
	}

	// Empty output is its own outcome no matter which terminal condition
	// ended the stream; it is never billed and never reported as an error.
	var status models.CallStatus
	switch {
	case !hasContent:
		status = models.CallStatusEmptyResponse
	case c.Reason == gateway.ReasonDisconnected:
		status = models.CallStatusUserDisconnected
	case c.Reason == gateway.ReasonErrored && gateway.ErrorType(c.Err) == "timeout_error":
		status = models.CallStatusTimeout
	case c.Reason == gateway.ReasonErrored:
		status = models.CallStatusError
	default:
		status = models.CallStatusSuccess
	}

	RecordCall(CallRecordInput{
		UserID:       input.UserID,
		BusinessType: input.BusinessType,
		Model:        cfg,
		PromptID:     input.PromptID,
		SystemPrompt: input.SystemPrompt,
		UserPrompt:   input.UserPrompt,
		Params:       input.Params,
		Status:       status,
		Content:      c.Content,
		Usage:        c.Usage,
		Elapsed:      c.Elapsed,
		CallErr:      c.Err,
	})
}
