package tools

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"eco-agent-backend/dao"
	"eco-agent-backend/model"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

const (
	ToolGenerateChart = "generate_chart"

	maxChartLabels = 200
)

var (
	//go:embed prompts/chart.txt
	chartPrompt string

	chartTemplate = template.Must(template.New("chart").Parse(chartPrompt))

	chartTypes = map[string]bool{"bar": true, "line": true, "pie": true, "scatter": true, "area": true}
)

type GenerateChartTool struct {
	llm llms.Model
}

var _ Tool = &GenerateChartTool{}

func NewGenerateChartTool(llm llms.Model) *GenerateChartTool {
	return &GenerateChartTool{llm: llm}
}

type generateChartArgs struct {
	Prompt    string `json:"prompt" validate:"required,max=4000"`
	ChartType string `json:"chart_type" validate:"omitempty,oneof=bar line pie scatter area"`
	Data      string `json:"data" validate:"max=20000"`
}

type generateChartResult struct {
	ChartID   string `json:"chart_id"`
	Title     string `json:"title"`
	ChartType string `json:"chart_type"`
	URL       string `json:"url"`
	Points    int    `json:"points"`
}

func (t *GenerateChartTool) Name() string {
	return ToolGenerateChart
}

func (t *GenerateChartTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name: ToolGenerateChart,
		Description: "Render a chart from figures found in documents or provided by the user. " +
			"Pass the figures in data; the chart is displayed to the user automatically.",
		Parameters: schema(map[string]any{
			"prompt":     stringProp("What the chart should show."),
			"chart_type": enumProp("Chart type.", "bar", "line", "pie", "scatter", "area"),
			"data":       stringProp("The figures to plot, as text, a table or JSON."),
		}, "prompt"),
	}
}

func (t *GenerateChartTool) Call(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
	var args generateChartArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	var spec model.ChartSpec
	if err := generateJSON(ctx, t.llm, chartTemplate, args, &spec); err != nil {
		return nil, fmt.Errorf("failed to generate chart: %w", err)
	}
	if args.ChartType != "" {
		spec.Type = args.ChartType
	}
	if err := validateChartSpec(&spec); err != nil {
		return nil, err
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}

	userID, anonymousID := artifactOwner(env)
	chart := &model.GeneratedChart{
		ID:          uuid.NewString(),
		UserID:      userID,
		AnonymousID: anonymousID,
		Prompt:      args.Prompt,
		Title:       spec.Title,
		ChartType:   spec.Type,
		Spec:        specJSON,
	}
	if err := dao.CreateChart(ctx, chart); err != nil {
		return nil, fmt.Errorf("failed to save chart: %w", err)
	}

	return generateChartResult{
		ChartID:   chart.ID,
		Title:     chart.Title,
		ChartType: chart.ChartType,
		URL:       "/api/charts/" + chart.ID,
		Points:    len(spec.Labels),
	}, nil
}

func validateChartSpec(spec *model.ChartSpec) error {
	spec.Type = strings.ToLower(strings.TrimSpace(spec.Type))
	if !chartTypes[spec.Type] {
		spec.Type = "bar"
	}
	if spec.Title == "" {
		spec.Title = "Chart"
	}
	if len(spec.Labels) == 0 || len(spec.Datasets) == 0 {
		return errors.New("chart has no data")
	}
	if len(spec.Labels) > maxChartLabels {
		return fmt.Errorf("chart has too many labels: %d", len(spec.Labels))
	}
	for i, ds := range spec.Datasets {
		if len(ds.Data) != len(spec.Labels) {
			return fmt.Errorf("dataset %d has %d values for %d labels", i, len(ds.Data), len(spec.Labels))
		}
	}
	return nil
}
