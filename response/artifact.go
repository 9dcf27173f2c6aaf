package response

import (
	"time"

	"eco-agent-backend/model"
)

type ChartResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	ChartType string          `json:"chart_type"`
	Spec      model.ChartSpec `json:"spec"`
	CreatedAt time.Time       `json:"created_at"`
}
