package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/dashboard"
	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/maprender"
	"github.com/couchcryptid/drought-cdi-service/internal/session"
	"github.com/couchcryptid/drought-cdi-service/internal/translate"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const maxBodyBytes = 1 << 20

type authResponse struct {
	Token     string      `json:"token"`
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	sess, err := s.deps.Sessions.Login(r.Context(), body.Email)
	if errors.Is(err, session.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "Unknown email")
		return
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	s.openDashboard(r, sess)
	sharedobs.WriteJSON(w, http.StatusOK, authResponse{Token: sess.Token, User: sess.User, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in session.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sess, err := s.deps.Sessions.Register(r.Context(), in)
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	if err != nil {
		s.logger.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	s.openDashboard(r, sess)
	sharedobs.WriteJSON(w, http.StatusCreated, authResponse{Token: sess.Token, User: sess.User, ExpiresAt: sess.ExpiresAt})
}

// openDashboard initialises the session's controller. Failures are logged;
// the controller is created again on first use.
func (s *Server) openDashboard(r *http.Request, sess *session.Session) {
	if _, err := s.deps.Dashboards.Open(r.Context(), sess.ID, sess.User, sess.ExpiresAt); err != nil {
		s.logger.Warn("dashboard init failed", "user_id", sess.User.ID, "error", err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	id, err := s.deps.Sessions.Logout(r.Context(), sess.Token)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		s.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	if id == "" {
		id = sess.ID
	}
	s.deps.Dashboards.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, sessionFrom(r.Context()).User)
}

type predictionsResponse struct {
	Region      domain.Region `json:"region"`
	Woreda      string        `json:"woreda,omitempty"`
	Predictions domain.Series `json:"predictions"`
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	user := sessionFrom(r.Context()).User
	q := r.URL.Query()

	// Without a region, a woreda selects the region owning it.
	region := user.PlaceOfInterest.Region
	woreda := q.Get("woreda")
	if raw := q.Get("region"); raw != "" {
		parsed, err := domain.ParseRegion(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		region = parsed
	} else if owner, ok := domain.RegionOfWoreda(woreda); ok {
		region = owner
	}
	if !domain.CanViewRegion(&user, region) {
		writeError(w, http.StatusForbidden, "region not allowed")
		return
	}
	if woreda != "" {
		if !domain.HasWoreda(region, woreda) {
			writeError(w, http.StatusBadRequest, "woreda "+woreda+" is not in "+region.DisplayName())
			return
		}
		if !slices.Contains(domain.AllowedWoredas(&user, region), woreda) {
			writeError(w, http.StatusForbidden, "woreda not allowed")
			return
		}
	}

	key := domain.SeriesKey{Region: region, Woreda: woreda}
	series, err := s.deps.Predictions.Fetch(r.Context(), key)
	if err != nil {
		s.logger.Warn("prediction fetch failed", "region", region, "woreda", woreda, "error", err)
		writeError(w, http.StatusBadGateway, "predictions unavailable")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, predictionsResponse{Region: region, Woreda: woreda, Predictions: series})
}

type translateRequest struct {
	Q      translate.Texts `json:"q"`
	Target string          `json:"target"`
	Source string          `json:"source,omitempty"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var body translateRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	out, err := s.deps.Translator.Translate(r.Context(), body.Q, body.Target, body.Source)
	var apiErr *translate.APIError
	switch {
	case err == nil:
		sharedobs.WriteJSON(w, http.StatusOK, map[string][]string{"translations": out})
	case errors.Is(err, translate.ErrMissingKey):
		writeError(w, http.StatusInternalServerError, "Missing GOOGLE_TRANSLATE_API_KEY")
	case errors.Is(err, translate.ErrMissingInput):
		writeError(w, http.StatusBadRequest, "Missing q or target")
	case errors.As(err, &apiErr):
		writeError(w, apiErr.StatusCode, apiErr.Body)
	default:
		s.logger.Warn("translate failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGeo(w http.ResponseWriter, r *http.Request) {
	user := sessionFrom(r.Context()).User
	region, err := domain.ParseRegion(r.PathValue("region"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !domain.CanViewRegion(&user, region) {
		writeError(w, http.StatusForbidden, "region not allowed")
		return
	}
	fc, err := s.deps.Geo.Load(r.Context(), region)
	if err != nil {
		s.logger.Warn("feature collection load failed", "region", region, "error", err)
		writeError(w, http.StatusBadGateway, "feature collection unavailable")
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode feature collection")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client went away
}

// controller returns the dashboard of the request's session, creating it
// when the service restarted since login.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*dashboard.Controller, bool) {
	sess := sessionFrom(r.Context())
	c, err := s.deps.Dashboards.Open(r.Context(), sess.ID, sess.User, sess.ExpiresAt)
	if err != nil {
		s.logger.Error("dashboard unavailable", "user_id", sess.User.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "dashboard unavailable")
		return nil, false
	}
	return c, true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	snap, err := c.Sync(r.Context())
	if err != nil {
		s.writeDashboardError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDashboardUpdate(w http.ResponseWriter, r *http.Request) {
	var u dashboard.Update
	if !decodeJSON(w, r, &u) {
		return
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	snap, err := c.Apply(r.Context(), u)
	if err != nil {
		s.writeDashboardError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	layer, err := c.Map()
	if err != nil {
		s.writeDashboardError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, layer)
}

type selectResponse struct {
	Popup     maprender.Popup    `json:"popup"`
	Dashboard dashboard.Snapshot `json:"dashboard"`
}

// mapSelectRequest picks a feature by name or by a clicked coordinate.
type mapSelectRequest struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

func (s *Server) handleMapSelect(w http.ResponseWriter, r *http.Request) {
	var body mapSelectRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	byPoint := body.Name == "" && body.Lat != nil && body.Lng != nil
	var p domain.LatLng
	if byPoint {
		p = domain.LatLng{Lat: *body.Lat, Lng: *body.Lng}
		if !domain.EthiopiaBounds.Contains(p) {
			writeError(w, http.StatusBadRequest, "point is outside the map")
			return
		}
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	var (
		popup maprender.Popup
		snap  dashboard.Snapshot
		err   error
	)
	if byPoint {
		popup, snap, err = c.SelectAt(r.Context(), p)
	} else {
		popup, snap, err = c.SelectFeature(r.Context(), body.Name)
	}
	if err != nil {
		s.writeDashboardError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, selectResponse{Popup: popup, Dashboard: snap})
}

type datasetsResponse struct {
	Datasets []domain.Dataset     `json:"datasets"`
	Summary  domain.DatasetSummary `json:"summary"`
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	user := sessionFrom(r.Context()).User
	q := r.URL.Query()
	ds, sum := domain.Datasets(&user, domain.DatasetFilter{
		Region:   q.Get("region"),
		Variable: q.Get("variable"),
		Status:   q.Get("status"),
		Search:   q.Get("search"),
	})
	sharedobs.WriteJSON(w, http.StatusOK, datasetsResponse{Datasets: ds, Summary: sum})
}

type reportsResponse struct {
	Reports []domain.Report     `json:"reports"`
	Summary domain.ReportSummary `json:"summary"`
	Types   []string            `json:"types"`
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	user := sessionFrom(r.Context()).User
	reports, sum := domain.Reports(&user)
	sharedobs.WriteJSON(w, http.StatusOK, reportsResponse{Reports: reports, Summary: sum, Types: domain.ReportTypes})
}

func (s *Server) handleReportRequest(w http.ResponseWriter, r *http.Request) {
	var in dashboard.ReportInput
	if !decodeJSON(w, r, &in) {
		return
	}
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	req, err := c.RequestReport(r.Context(), in)
	switch {
	case err == nil:
		sharedobs.WriteJSON(w, http.StatusAccepted, req)
	case errors.Is(err, domain.ErrInvalidReport):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeDashboardError(w, err)
	}
}

func (s *Server) writeDashboardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrInvalidUpdate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dashboard.ErrForbiddenRegion):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, maprender.ErrUnknownFeature):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, maprender.ErrNotRendered):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dashboard.ErrClosed):
		writeError(w, http.StatusGone, err.Error())
	default:
		s.logger.Error("dashboard request failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
