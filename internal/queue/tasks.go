package queue

import (
	"encoding/json"
	"fmt"

	"github.com/evdist-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskBinaryMatchPairs 祖先配对任务
	TaskBinaryMatchPairs = constants.TaskBinaryMatchPairs
	// TaskBinaryDirectCommission 直推佣金任务
	TaskBinaryDirectCommission = constants.TaskBinaryDirectCommission
)

// MatchPairsPayload 配对任务载荷
type MatchPairsPayload struct {
	AncestorUserID uint   `json:"ancestor_user_id"`
	Trigger        string `json:"trigger,omitempty"`
}

// DirectCommissionPayload 直推佣金任务载荷
type DirectCommissionPayload struct {
	MemberUserID uint `json:"member_user_id"`
}

// NewMatchPairsTask 创建配对任务
func NewMatchPairsTask(payload MatchPairsPayload) (*asynq.Task, error) {
	if payload.AncestorUserID == 0 {
		return nil, fmt.Errorf("match pairs task requires ancestor_user_id")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBinaryMatchPairs, body), nil
}

// NewDirectCommissionTask 创建直推佣金任务
func NewDirectCommissionTask(payload DirectCommissionPayload) (*asynq.Task, error) {
	if payload.MemberUserID == 0 {
		return nil, fmt.Errorf("direct commission task requires member_user_id")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBinaryDirectCommission, body), nil
}

// ParseMatchPairsPayload 解析配对任务载荷
func ParseMatchPairsPayload(task *asynq.Task) (MatchPairsPayload, error) {
	var payload MatchPairsPayload
	if task == nil {
		return payload, fmt.Errorf("nil task")
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}

// ParseDirectCommissionPayload 解析直推佣金任务载荷
func ParseDirectCommissionPayload(task *asynq.Task) (DirectCommissionPayload, error) {
	var payload DirectCommissionPayload
	if task == nil {
		return payload, fmt.Errorf("nil task")
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
