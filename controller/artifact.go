package controller

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"eco-agent-backend/dao"
	"eco-agent-backend/middleware"
	"eco-agent-backend/model"
	"eco-agent-backend/response"

	"github.com/gin-gonic/gin"
)

// GetImage 返回图片二进制内容
func GetImage(c *gin.Context) {
	image, err := dao.GetImage(c.Request.Context(), middleware.OwnerFrom(c), c.Param("id"))
	if err != nil {
		artifactError(c, err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(image.ImageBase64)
	if err != nil {
		slog.Error(ErrGetArtifact.Error(), "image_id", image.ID, "err", err)
		abort(c, http.StatusInternalServerError, ErrGetArtifact)
		return
	}

	mediaType := image.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, mediaType, data)
}

func GetChart(c *gin.Context) {
	chart, err := dao.GetChart(c.Request.Context(), middleware.OwnerFrom(c), c.Param("id"))
	if err != nil {
		artifactError(c, err)
		return
	}

	var spec model.ChartSpec
	if err := json.Unmarshal(chart.Spec, &spec); err != nil {
		slog.Error(ErrGetArtifact.Error(), "chart_id", chart.ID, "err", err)
		abort(c, http.StatusInternalServerError, ErrGetArtifact)
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.ChartResponse{
			ID:        chart.ID,
			Title:     chart.Title,
			ChartType: chart.ChartType,
			Spec:      spec,
			CreatedAt: chart.CreatedAt,
		},
	})
}

// GetCSV 以附件形式下载表格
func GetCSV(c *gin.Context) {
	table, err := dao.GetCSV(c.Request.Context(), middleware.OwnerFrom(c), c.Param("id"))
	if err != nil {
		artifactError(c, err)
		return
	}

	data, err := encodeCSV(table)
	if err != nil {
		slog.Error(ErrGetArtifact.Error(), "csv_id", table.ID, "err", err)
		abort(c, http.StatusInternalServerError, ErrGetArtifact)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, table.Filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func encodeCSV(table *model.GeneratedCSV) ([]byte, error) {
	var columns []string
	if err := json.Unmarshal(table.Columns, &columns); err != nil {
		return nil, err
	}
	var rows [][]string
	if err := json.Unmarshal(table.Rows, &rows); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func artifactError(c *gin.Context, err error) {
	if errors.Is(err, dao.ErrNotFound) {
		abort(c, http.StatusNotFound, ErrArtifactNotFound)
		return
	}
	slog.Error(ErrGetArtifact.Error(), "id", c.Param("id"), "err", err)
	abort(c, http.StatusInternalServerError, ErrGetArtifact)
}
