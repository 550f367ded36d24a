package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/wdm0006/chandash/pkg/chain"
	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/profile"
	"github.com/wdm0006/chandash/pkg/views"
)

const maxBody = 1 << 20

type datasetInfo struct {
	Count    int      `json:"count"`
	Fields   []string `json:"fields"`
	Revision uint64   `json:"revision"`
}

func (s *Server) handleDataset(w http.ResponseWriter, _ *http.Request) {
	pl := s.dash.Pipeline()
	data := pl.Data()
	writeJSON(w, http.StatusOK, datasetInfo{Count: len(data), Fields: data.FieldNames(), Revision: pl.Revision()})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	topK := 5
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, "top must be a positive integer")
			return
		}
		topK = n
	}
	c := profile.NewCollector(topK)
	c.Consume(s.dash.Pipeline().Data())
	writeJSON(w, http.StatusOK, c.ReportJSON())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	pl := s.dash.Pipeline()
	if err := pl.Load(r.Context(), s.opt.DataPath, s.opt.DataFormat); err != nil {
		s.fail(w, r, err)
		return
	}
	data := pl.Data()
	writeJSON(w, http.StatusOK, datasetInfo{Count: len(data), Fields: data.FieldNames(), Revision: pl.Revision()})
}

type runRequest struct {
	Exclude json.RawMessage `json:"exclude"`
}

type runResponse struct {
	Shape    p.Shape  `json:"shape"`
	Revision uint64   `json:"revision"`
	Data     p.Result `json:"data"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			badRequest(w, fmt.Sprintf("invalid payload: %v", err))
			return
		}
	}
	exclude, err := p.ParseSelection(req.Exclude)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, rev, err := s.dash.Pipeline().RunAt(r.Context(), exclude)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Shape: p.ShapeOf(res), Revision: rev, Data: res})
}

func (s *Server) handleListOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.Pipeline().Operations())
}

func (s *Server) handlePutOperation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	def, err := chain.DecodeDefinition(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if def.Name != "" && def.Name != name {
		badRequest(w, fmt.Sprintf("definition name %q does not match path %q", def.Name, name))
		return
	}
	def.Name = name
	op, err := chain.Compile(def)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pl := s.dash.Pipeline()
	status := http.StatusCreated
	if pl.Has(name) {
		status = http.StatusOK
	}
	pl.AddOperation(name, op)
	writeJSON(w, status, p.OperationInfo{Name: name, Kind: op.Kind()})
}

func (s *Server) handleDeleteOperation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	pl := s.dash.Pipeline()
	if !pl.Has(name) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("no operation %q", name)})
		return
	}
	pl.RemoveOperation(name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearOperations(w http.ResponseWriter, _ *http.Request) {
	s.dash.Pipeline().ClearOperations()
	w.WriteHeader(http.StatusNoContent)
}

type filterRequest struct {
	Values []string `json:"values"`
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid payload: %v", err))
		return
	}
	switch r.PathValue("kind") {
	case "country":
		s.dash.SetCountries(req.Values)
	case "category":
		s.dash.SetCategories(req.Values)
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "filter must be country or category"})
		return
	}
	writeJSON(w, http.StatusOK, s.dash.Pipeline().Operations())
}

func (s *Server) handleClearFilters(w http.ResponseWriter, _ *http.Request) {
	s.dash.ClearFilters()
	w.WriteHeader(http.StatusNoContent)
}

type viewResponse struct {
	View  string       `json:"view"`
	Drill *views.Drill `json:"drill,omitempty"`
	Data  any          `json:"data"`
}

func intParam(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

// computeView dispatches a view name to its model. Views without their own
// drill state (world, top, choropleth, markers, compare) report none.
func (s *Server) computeView(r *http.Request, view string) (any, error) {
	ctx := r.Context()
	q := r.URL.Query()
	switch view {
	case views.MapView:
		return s.dash.CountryStats(ctx)
	case "world":
		return s.dash.WorldStats(ctx)
	case "top":
		n, err := intParam(r, "n", 10)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", p.ErrInvalidSelection, err)
		}
		return s.dash.TopChannels(ctx, q.Get("country"), n)
	case "choropleth":
		return s.dash.Choropleth(ctx, q.Get("metric"))
	case "markers":
		return s.dash.Markers(ctx)
	case views.PieView:
		return s.dash.Pie(ctx)
	case views.HistogramView:
		return s.dash.Engagement(ctx)
	case "compare":
		return s.dash.Compare(ctx, q.Get("channel"))
	case views.TreemapView:
		return s.dash.Treemap(ctx)
	case views.BubbleView:
		return s.dash.Bubble(ctx)
	}
	return nil, fmt.Errorf("%w: %q", views.ErrUnknownView, view)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view := r.PathValue("view")
	data, err := s.computeView(r, view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := viewResponse{View: view, Data: data}
	if st, err := s.dash.State(view); err == nil {
		resp.Drill = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDrillState(w http.ResponseWriter, r *http.Request) {
	st, err := s.dash.State(r.PathValue("view"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type drillRequest struct {
	Event string `json:"event"`
	Value string `json:"value"`
}

func (s *Server) handleDrill(w http.ResponseWriter, r *http.Request) {
	var req drillRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid payload: %v", err))
		return
	}
	st, err := s.dash.Drill(r.PathValue("view"), views.Event(req.Event), req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
