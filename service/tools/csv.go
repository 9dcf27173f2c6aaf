package tools

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"eco-agent-backend/dao"
	"eco-agent-backend/model"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

const (
	ToolGenerateCSV = "generate_csv"

	maxCSVRows      = 5000
	csvPreviewRows  = 3
	defaultFilename = "data.csv"
)

var (
	//go:embed prompts/csv.txt
	csvPrompt string

	csvTemplate = template.Must(template.New("csv").Parse(csvPrompt))

	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

type GenerateCSVTool struct {
	llm llms.Model
}

var _ Tool = &GenerateCSVTool{}

func NewGenerateCSVTool(llm llms.Model) *GenerateCSVTool {
	return &GenerateCSVTool{llm: llm}
}

type generateCSVArgs struct {
	Prompt   string `json:"prompt" validate:"required,max=4000"`
	Filename string `json:"filename" validate:"max=120"`
	Data     string `json:"data" validate:"max=50000"`
}

// csvTable 模型输出的单元格可能是数字或布尔值
type csvTable struct {
	Filename string   `json:"filename"`
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
}

type generateCSVResult struct {
	CSVID    string     `json:"csv_id"`
	Filename string     `json:"filename"`
	Columns  []string   `json:"columns"`
	RowCount int        `json:"row_count"`
	Preview  [][]string `json:"preview"`
	URL      string     `json:"url"`
}

func (t *GenerateCSVTool) Name() string {
	return ToolGenerateCSV
}

func (t *GenerateCSVTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name: ToolGenerateCSV,
		Description: "Create a downloadable CSV table from figures found in documents or provided by the user. " +
			"The download link is shown to the user automatically.",
		Parameters: schema(map[string]any{
			"prompt":   stringProp("What the table should contain."),
			"filename": stringProp("Suggested file name ending in .csv."),
			"data":     stringProp("The values to tabulate, as text, a table or JSON."),
		}, "prompt"),
	}
}

func (t *GenerateCSVTool) Call(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
	var args generateCSVArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	var table csvTable
	if err := generateJSON(ctx, t.llm, csvTemplate, args, &table); err != nil {
		return nil, fmt.Errorf("failed to generate csv: %w", err)
	}
	if args.Filename != "" {
		table.Filename = args.Filename
	}
	cells, err := normalizeTable(&table)
	if err != nil {
		return nil, err
	}

	columns, err := json.Marshal(table.Columns)
	if err != nil {
		return nil, err
	}
	rows, err := json.Marshal(cells)
	if err != nil {
		return nil, err
	}

	userID, anonymousID := artifactOwner(env)
	csv := &model.GeneratedCSV{
		ID:          uuid.NewString(),
		UserID:      userID,
		AnonymousID: anonymousID,
		Prompt:      args.Prompt,
		Filename:    table.Filename,
		Columns:     columns,
		Rows:        rows,
		RowCount:    len(cells),
	}
	if err := dao.CreateCSV(ctx, csv); err != nil {
		return nil, fmt.Errorf("failed to save csv: %w", err)
	}

	preview := cells
	if len(preview) > csvPreviewRows {
		preview = preview[:csvPreviewRows]
	}
	return generateCSVResult{
		CSVID:    csv.ID,
		Filename: csv.Filename,
		Columns:  table.Columns,
		RowCount: csv.RowCount,
		Preview:  preview,
		URL:      "/api/csv/" + csv.ID,
	}, nil
}

// normalizeTable 单元格转为字符串，每行补齐或截断到列数，并清理文件名
func normalizeTable(table *csvTable) ([][]string, error) {
	if len(table.Columns) == 0 {
		return nil, errors.New("table has no columns")
	}
	if len(table.Rows) > maxCSVRows {
		return nil, fmt.Errorf("table has too many rows: %d", len(table.Rows))
	}

	cells := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		out := make([]string, len(table.Columns))
		for i := 0; i < len(out) && i < len(row); i++ {
			out[i] = cellString(row[i])
		}
		cells = append(cells, out)
	}
	table.Filename = SanitizeFilename(table.Filename)
	return cells, nil
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ".csv")
	name = unsafeFilenameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		return defaultFilename
	}
	if len(name) > 100 {
		name = name[:100]
	}
	return name + ".csv"
}
