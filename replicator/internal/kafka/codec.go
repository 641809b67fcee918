package kafka

import (
	"fmt"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeJobEvent serializes a JobEvent as a protobuf Struct.
func EncodeJobEvent(ev domain.JobEvent) ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"job_id":            ev.JobID,
		"master_account_id": ev.MasterAccountID,
		"trade": map[string]any{
			"symbol":      ev.Trade.Symbol,
			"direction":   ev.Trade.Direction,
			"volume":      ev.Trade.Volume,
			"stop_loss":   ev.Trade.StopLoss,
			"take_profit": ev.Trade.TakeProfit,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build job event struct: %w", err)
	}
	value, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal job event proto: %w", err)
	}
	return value, nil
}

// DecodeJobEvent is the inverse of EncodeJobEvent. Only job_id is mandatory;
// the engine reads the authoritative trade from the job store.
func DecodeJobEvent(value []byte) (domain.JobEvent, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(value, &msg); err != nil {
		return domain.JobEvent{}, fmt.Errorf("unmarshal job event proto: %w", err)
	}
	fields := msg.GetFields()

	ev := domain.JobEvent{
		JobID:           fields["job_id"].GetStringValue(),
		MasterAccountID: fields["master_account_id"].GetStringValue(),
	}
	if ev.JobID == "" {
		return domain.JobEvent{}, fmt.Errorf("job event without job_id")
	}
	if trade := fields["trade"].GetStructValue(); trade != nil {
		tf := trade.GetFields()
		ev.Trade = domain.MasterTrade{
			Symbol:     tf["symbol"].GetStringValue(),
			Direction:  tf["direction"].GetStringValue(),
			Volume:     tf["volume"].GetNumberValue(),
			StopLoss:   tf["stop_loss"].GetNumberValue(),
			TakeProfit: tf["take_profit"].GetNumberValue(),
		}
	}
	return ev, nil
}

// EncodeJobResult serializes a terminal job for the results topic.
func EncodeJobResult(job domain.ReplicationJob) ([]byte, error) {
	results := make([]any, 0, len(job.Results))
	for _, r := range job.Results {
		results = append(results, map[string]any{
			"follower_id": r.FollowerID,
			"status":      string(r.Status),
			"volume":      r.Volume,
			"error":       r.Error,
		})
	}
	processedAt := ""
	if job.ProcessedAt != nil {
		processedAt = job.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}

	msg, err := structpb.NewStruct(map[string]any{
		"job_id":            job.ID,
		"master_account_id": job.MasterAccountID,
		"symbol":            job.Trade.Symbol,
		"status":            string(job.Status),
		"error":             job.Error,
		"processed_at":      processedAt,
		"results":           results,
	})
	if err != nil {
		return nil, fmt.Errorf("build job result struct: %w", err)
	}
	value, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal job result proto: %w", err)
	}
	return value, nil
}
