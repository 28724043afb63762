package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

const TaskProviderSync = "providers.sync"

type ProviderSyncPayload struct {
	Provider string `json:"provider"`
}

func NewProviderSyncTask(payload ProviderSyncPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.Provider) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProviderSync, data), nil
}

func ParseProviderSyncPayload(task *asynq.Task) (ProviderSyncPayload, error) {
	var payload ProviderSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProviderSyncPayload{}, err
	}
	if strings.TrimSpace(payload.Provider) == "" {
		return ProviderSyncPayload{}, fmt.Errorf("provider is required")
	}
	return payload, nil
}
