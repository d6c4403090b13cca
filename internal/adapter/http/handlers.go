package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/pipeline"
	"github.com/couchcryptid/carbon-emission-etl/internal/tabular"
)

const (
	defaultTopLimit = 5
	msgNoResults    = "Run analysis to generate results."
)

type runResponse struct {
	Status string               `json:"status"`
	Runs   []pipeline.RunResult `json:"runs"`
	Error  string               `json:"error,omitempty"`
}

func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	results, err := s.runner.RunAll(ctx)
	if results == nil {
		results = []pipeline.RunResult{}
	}
	if err != nil {
		writeJSON(w, runErrorStatus(err), runResponse{Status: "failed", Runs: results, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Status: "ok", Runs: results})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	d, err := domain.ParseDomain(mux.Vars(r)["domain"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	res, err := s.runner.Run(ctx, d)
	if err != nil {
		writeError(w, runErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	d, err := domain.ParseDomain(mux.Vars(r)["domain"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	st, err := s.runner.Status(d)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatuses(w http.ResponseWriter, _ *http.Request) {
	out := make([]pipeline.RunStatus, 0, 2)
	for _, d := range s.runner.Domains() {
		if st, err := s.runner.Status(d); err == nil {
			out = append(out, st)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.models)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	status, err := statusFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, table, ok := s.loadResults(w, r)
	if !ok {
		return
	}
	rows, err := filterByStatus(table, table.Rows, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRecords(d, table, rows))
}

// statusFilter reads the optional ?status=HIGH|SAFE query, case-insensitively.
func statusFilter(r *http.Request) (domain.Status, error) {
	v := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	switch domain.Status(v) {
	case "":
		return "", nil
	case domain.StatusHigh, domain.StatusSafe:
		return domain.Status(v), nil
	default:
		return "", fmt.Errorf("invalid status %q (want %s or %s)", r.URL.Query().Get("status"), domain.StatusHigh, domain.StatusSafe)
	}
}

// filterByStatus keeps the rows classified as status; an empty status keeps all.
func filterByStatus(table domain.Table, rows [][]string, status domain.Status) ([][]string, error) {
	if status == "" {
		return rows, nil
	}
	idx, ok := table.ColumnIndex(domain.ColumnStatus)
	if !ok {
		return nil, fmt.Errorf("result table has no %s column", domain.ColumnStatus)
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if idx < len(row) && row[idx] == string(status) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	status, err := statusFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, table, ok := s.loadResults(w, r)
	if !ok {
		return
	}

	rows, err := sortByPrediction(table)
	if err == nil {
		rows, err = filterByStatus(table, rows, status)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if limit < len(rows) {
		rows = rows[:limit]
	}
	writeJSON(w, http.StatusOK, toRecords(d, table, rows))
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	d, table, ok := s.loadResults(w, r)
	if !ok {
		return
	}
	schema, err := domain.SchemaFor(d)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	idCol := schema.IDColumn()
	idIdx, okID := table.ColumnIndex(idCol)
	predIdx, okPred := table.ColumnIndex(domain.ColumnPredicted)
	if !okID || !okPred {
		writeError(w, http.StatusInternalServerError, "result table is missing the identifier or prediction column")
		return
	}

	points := make([]record, len(table.Rows))
	for i, row := range table.Rows {
		points[i] = record{
			{key: idCol, value: stringValue(row[idIdx])},
			{key: domain.ColumnPredicted, value: numberValue(row[predIdx])},
			{key: "Index", value: strconv.Itoa(i + 1)},
		}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "parquet" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q (want csv or parquet)", format))
		return
	}
	d, table, ok := s.loadResults(w, r)
	if !ok {
		return
	}

	contentType := "text/csv"
	var data []byte
	var err error
	if format == "parquet" {
		contentType = "application/vnd.apache.parquet"
		var buf bytes.Buffer
		err = tabular.WriteParquet(&buf, table)
		data = buf.Bytes()
	} else {
		data, err = tabular.Encode(table)
	}
	if err != nil {
		s.logger.Error("download failed", "domain", d, "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "report encoding failed")
		return
	}

	filename := fmt.Sprintf("%s_emission_report.%s", d, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", contentType)
	w.Write(data) //nolint:errcheck // client may have gone away
}

// loadResults resolves the collection and reads its table, writing the error
// response itself when there is nothing to serve.
func (s *Server) loadResults(w http.ResponseWriter, r *http.Request) (domain.Domain, domain.Table, bool) {
	d, err := domain.ParseDomain(mux.Vars(r)["collection"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", domain.Table{}, false
	}
	table, err := s.results.ReadResults(d)
	if err == nil {
		return d, table, true
	}
	if !errors.Is(err, domain.ErrNoResults) {
		s.logger.Error("read results failed", "domain", d, "error", err)
		writeError(w, http.StatusInternalServerError, "results unavailable")
		return d, domain.Table{}, false
	}

	st, serr := s.runner.Status(d)
	switch {
	case serr == nil && st.State == pipeline.StateRunning:
		writeJSON(w, http.StatusConflict, map[string]string{"error": "run in progress", "run_id": st.RunID})
	case serr == nil && st.State == pipeline.StateFailed:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run failed", "cause": st.Error, "run_id": st.RunID})
	default:
		writeError(w, http.StatusNotFound, msgNoResults)
	}
	return d, domain.Table{}, false
}

func sortByPrediction(table domain.Table) ([][]string, error) {
	idx, ok := table.ColumnIndex(domain.ColumnPredicted)
	if !ok {
		return nil, errors.New("result table has no " + domain.ColumnPredicted + " column")
	}
	type keyed struct {
		row []string
		v   float64
	}
	rows := make([]keyed, len(table.Rows))
	for i, row := range table.Rows {
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad %s %q", i+1, domain.ColumnPredicted, row[idx])
		}
		rows[i] = keyed{row: row, v: v}
	}
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].v > rows[b].v })

	out := make([][]string, len(rows))
	for i, k := range rows {
		out[i] = k.row
	}
	return out, nil
}

func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownDomain):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInputMalformed), errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
