package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/kjannette/finagg-backend/internal/aggregate"
	"github.com/kjannette/finagg-backend/internal/export"
	"github.com/kjannette/finagg-backend/internal/models"
)

const (
	defaultWindow = 20
	defaultPeriod = 20
)

type priceJSON struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
}

type pricesResponse struct {
	Company         string      `json:"company"`
	Start           string      `json:"start"`
	End             string      `json:"end"`
	Points          []priceJSON `json:"points"`
	MissingSessions []string    `json:"missingSessions"`
}

type averageJSON struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type averageResponse struct {
	Company   string        `json:"company"`
	Start     string        `json:"start"`
	End       string        `json:"end"`
	Window    int           `json:"window,omitempty"`
	Smoothing float64       `json:"smoothing,omitempty"`
	Points    []averageJSON `json:"points"`
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.deps.Companies.ListCompanies(r.Context())
	if err != nil {
		s.log.Errorw("list companies", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch companies")
		return
	}
	if companies == nil {
		companies = []string{}
	}
	writeJSON(w, http.StatusOK, companies)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	company := r.PathValue("company")
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := s.deps.Series.PriceSeries(r.Context(), company, start, end)
	if err != nil {
		s.writeDomainError(w, err, "fetch prices")
		return
	}

	out := pricesResponse{
		Company:         company,
		Start:           start.Format(models.DayLayout),
		End:             end.Format(models.DayLayout),
		Points:          make([]priceJSON, len(points)),
		MissingSessions: []string{},
	}
	for i, p := range points {
		out.Points[i] = priceJSON{Date: p.Day(), Open: p.Open, High: p.High, Low: p.Low, Close: p.Close, Volume: p.Volume}
	}
	if s.deps.Calendar != nil {
		for _, d := range s.deps.Calendar.MissingSessions(points, start, end) {
			out.MissingSessions = append(out.MissingSessions, d.Format(models.DayLayout))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSMA(w http.ResponseWriter, r *http.Request) {
	company := r.PathValue("company")
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	window, err := intParam(r, "window", defaultWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, err := s.deps.Series.SMA(r.Context(), company, start, end, window)
	if err != nil {
		s.writeDomainError(w, err, "compute sma")
		return
	}
	writeJSON(w, http.StatusOK, averageResponse{
		Company: company,
		Start:   start.Format(models.DayLayout),
		End:     end.Format(models.DayLayout),
		Window:  window,
		Points:  averagesJSON(series),
	})
}

func (s *Server) handleEMA(w http.ResponseWriter, r *http.Request) {
	company := r.PathValue("company")
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	smoothing, err := smoothingParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, err := s.deps.Series.EMA(r.Context(), company, start, end, smoothing)
	if err != nil {
		s.writeDomainError(w, err, "compute ema")
		return
	}
	writeJSON(w, http.StatusOK, averageResponse{
		Company:   company,
		Start:     start.Format(models.DayLayout),
		End:       end.Format(models.DayLayout),
		Smoothing: smoothing,
		Points:    averagesJSON(series),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	company := r.PathValue("company")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	saver := export.NewSaver(format)
	if saver == nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q (use csv, json, parquet, xlsx)", format))
		return
	}

	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	window, err := intParam(r, "window", defaultWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	smoothing, err := smoothingParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := export.Build(r.Context(), s.deps.Series, export.Request{
		Company: company, Start: start, End: end, Window: window, Smoothing: smoothing,
	})
	if err != nil {
		s.writeDomainError(w, err, "build export")
		return
	}

	w.Header().Set("Content-Type", saver.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(company, saver.Extension())))
	if err := saver.Write(w, rows); err != nil {
		s.log.Errorw("write export", "company", company, "format", format, "error", err)
	}
}

// --- parameter helpers ---

func intParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", aggregate.ErrInvalidParameter, name)
	}
	return n, nil
}

// smoothingParam accepts either smoothing (0 < a <= 1) or period (N, a = 2/(N+1)).
func smoothingParam(r *http.Request) (float64, error) {
	q := r.URL.Query()
	raw, period := q.Get("smoothing"), q.Get("period")
	if raw != "" && period != "" {
		return 0, fmt.Errorf("%w: pass smoothing or period, not both", aggregate.ErrInvalidParameter)
	}
	if raw != "" {
		a, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: smoothing must be a number", aggregate.ErrInvalidParameter)
		}
		return a, nil
	}
	n, err := intParam(r, "period", defaultPeriod)
	if err != nil {
		return 0, err
	}
	return aggregate.SmoothingFromPeriod(n)
}

func averagesJSON(series []models.MovingAveragePoint) []averageJSON {
	out := make([]averageJSON, len(series))
	for i, p := range series {
		out[i] = averageJSON{Date: p.Date.Format(models.DayLayout), Value: p.Value}
	}
	return out
}

