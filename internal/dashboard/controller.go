// Package dashboard holds the per-session dashboard state: the selected tab,
// region, woreda, and forecast month, the prediction series behind them, and
// the map renderer that draws them.
//
// Every asynchronous load (primary series, region comparison, woreda
// comparison, map values, headline) carries a generation token. A completion
// whose token is no longer current is dropped.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/geo"
	"github.com/couchcryptid/drought-cdi-service/internal/maprender"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/couchcryptid/drought-cdi-service/internal/translate"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Tabs are the dashboard pages.
var Tabs = []string{"Dashboard", "Data", "Reports", "Help"}

// Comparison modes. Only admins choose; regional officers always compare
// woredas and woreda officers get no comparison.
const (
	CompareRegions = "regions"
	CompareWoredas = "woredas"
)

// loadTimeout bounds one round of loads started by Init, Apply or Sync.
const loadTimeout = 30 * time.Second

var (
	// ErrClosed is returned after the controller is torn down.
	ErrClosed = errors.New("dashboard closed")
	// ErrForbiddenRegion is returned when selecting a region the user may not view.
	ErrForbiddenRegion = errors.New("region not allowed for user")
	// ErrInvalidUpdate wraps malformed update fields.
	ErrInvalidUpdate = errors.New("invalid dashboard update")
)

// Headliner translates the dashboard headline.
type Headliner interface {
	Headline(ctx context.Context, lang string) string
}

// Deps are the collaborators shared by every controller.
type Deps struct {
	Source        domain.PredictionSource
	Geo           geo.Source
	Notifier      domain.AlertNotifier
	Reports       domain.ReportRequester
	Translator    Headliner
	Tiles         maprender.TileLayer
	ForecastStart time.Time
	Clock         clockwork.Clock
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

// Update changes selection state. Nil fields are left as they are; an empty
// Woreda clears the woreda.
type Update struct {
	Tab           *string `json:"tab,omitempty"`
	Region        *string `json:"region,omitempty"`
	Woreda        *string `json:"woreda,omitempty"`
	Month         *int    `json:"month,omitempty"`
	Lang          *string `json:"lang,omitempty"`
	CompareMode   *string `json:"compare_mode,omitempty"`
	CompareRegion *string `json:"compare_region,omitempty"`
}

type selection struct {
	tab           string
	region        domain.Region
	woreda        string
	month         int
	lang          string
	compareMode   string
	compareRegion domain.Region
}

func (s selection) key() domain.SeriesKey {
	return domain.SeriesKey{Region: s.region, Woreda: s.woreda}
}

// Controller is the dashboard of one session.
type Controller struct {
	user     domain.User
	deps     Deps
	logger   *slog.Logger
	renderer *maprender.Renderer
	unsub    func()

	mu       sync.Mutex
	closed   bool
	sel      selection
	headline string

	series    domain.Series
	seriesKey domain.SeriesKey
	regions   map[domain.Region]domain.Series
	woredas   map[domain.SeriesKey]domain.Series
	phases    map[domain.SeriesKey]domain.Phase
	lastAlert *domain.Alert

	primaryGen  uint64
	regionsGen  uint64
	woredasGen  uint64
	mapGen      uint64
	headlineGen uint64
}

// New creates a controller for user. Call Init before use.
func New(user domain.User, deps Deps) *Controller {
	c := &Controller{
		user:     user,
		deps:     deps,
		logger:   deps.Logger.With("user_id", user.ID),
		renderer: maprender.New(deps.Geo, deps.Metrics, deps.Logger),
		headline: translate.DefaultHeadline,
		regions:  make(map[domain.Region]domain.Series),
		woredas:  make(map[domain.SeriesKey]domain.Series),
		phases:   make(map[domain.SeriesKey]domain.Phase),
	}
	c.sel = selection{
		tab:           Tabs[0],
		region:        user.PlaceOfInterest.Region,
		woreda:        domain.EnsureWoreda(&c.user, user.PlaceOfInterest.Region, user.PlaceOfInterest.Woreda),
		lang:          "en",
		compareMode:   c.defaultCompareMode(),
		compareRegion: user.PlaceOfInterest.Region,
	}
	return c
}

// Init mounts the map, seeds the selection from the user's place of interest,
// and runs every load once.
func (c *Controller) Init(ctx context.Context) (Snapshot, error) {
	if err := c.renderer.Mount(ctx, c.deps.Tiles); err != nil {
		return Snapshot{}, fmt.Errorf("mount map: %w", err)
	}
	c.unsub = c.renderer.OnSelect(func(name string) {
		c.logger.Debug("map feature selected", "woreda", name)
	})

	c.mu.Lock()
	sel := c.sel
	c.mu.Unlock()

	c.refresh(ctx, sel, refreshAll)
	return c.Snapshot()
}

type refreshSet struct {
	primary, region, regions, woredas, headline bool
}

var refreshAll = refreshSet{primary: true, region: true, regions: true, woredas: true, headline: true}

// Apply validates and applies u, reloads what the change invalidates, and
// returns the new state.
func (c *Controller) Apply(ctx context.Context, u Update) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	prev := c.sel
	next, err := c.resolve(prev, u)
	if err != nil {
		c.mu.Unlock()
		return Snapshot{}, err
	}
	c.sel = next
	missing := c.seriesKey != next.key()
	c.mu.Unlock()

	rs := refreshSet{
		primary:  missing,
		region:   next.region != prev.region,
		woredas:  next.compareMode != prev.compareMode || next.compareRegion != prev.compareRegion,
		headline: next.lang != prev.lang,
	}
	if next.woreda != prev.woreda {
		if err := c.renderer.SetWoreda(next.woreda); err != nil && !errors.Is(err, maprender.ErrDestroyed) {
			return Snapshot{}, err
		}
	}
	c.refresh(ctx, next, rs)
	return c.Snapshot()
}

// Sync refetches the primary series when the last fetch for the current
// selection failed, then returns the state.
func (c *Controller) Sync(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	sel := c.sel
	missing := c.seriesKey != sel.key()
	c.mu.Unlock()

	if missing {
		c.refresh(ctx, sel, refreshSet{primary: true})
	}
	return c.Snapshot()
}

// resolve computes the selection after u. Callers hold c.mu.
func (c *Controller) resolve(s selection, u Update) (selection, error) {
	if u.Tab != nil {
		if !slices.Contains(Tabs, *u.Tab) {
			return s, fmt.Errorf("%w: unknown tab %q", ErrInvalidUpdate, *u.Tab)
		}
		s.tab = *u.Tab
	}
	if u.Region != nil {
		r, err := domain.ParseRegion(*u.Region)
		if err != nil {
			return s, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
		}
		if !domain.CanViewRegion(&c.user, r) {
			return s, fmt.Errorf("%w: %s", ErrForbiddenRegion, r)
		}
		s.region = r
	}
	candidate := s.woreda
	if u.Woreda != nil {
		candidate = *u.Woreda
	}
	s.woreda = domain.EnsureWoreda(&c.user, s.region, candidate)

	if u.Month != nil {
		s.month = domain.ClampMonth(*u.Month)
	}
	if u.Lang != nil {
		if !slices.Contains(translate.Languages, *u.Lang) {
			return s, fmt.Errorf("%w: unsupported language %q", ErrInvalidUpdate, *u.Lang)
		}
		s.lang = *u.Lang
	}
	if u.CompareMode != nil {
		mode := *u.CompareMode
		if mode != CompareRegions && mode != CompareWoredas {
			return s, fmt.Errorf("%w: unknown compare mode %q", ErrInvalidUpdate, mode)
		}
		if c.user.Role == domain.RoleAdmin {
			s.compareMode = mode
		}
	}
	if u.CompareRegion != nil {
		r, err := domain.ParseRegion(*u.CompareRegion)
		if err != nil {
			return s, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
		}
		if !domain.CanViewRegion(&c.user, r) {
			return s, fmt.Errorf("%w: %s", ErrForbiddenRegion, r)
		}
		s.compareRegion = r
	}
	return s, nil
}

func (c *Controller) defaultCompareMode() string {
	switch c.user.Role {
	case domain.RoleAdmin:
		return CompareRegions
	case domain.RoleRegionalOfficer:
		return CompareWoredas
	default:
		return ""
	}
}

func (c *Controller) regionComparison() bool {
	return c.user.Role != domain.RoleWoredaOfficer
}

func (c *Controller) woredaComparison(s selection) bool {
	return c.user.Role == domain.RoleRegionalOfficer ||
		(c.user.Role == domain.RoleAdmin && s.compareMode == CompareWoredas)
}

// refresh runs the loads selected by rs concurrently, then pushes values to
// the map and checks for a phase escalation.
func (c *Controller) refresh(ctx context.Context, s selection, rs refreshSet) {
	// Loads fill state shared by every request of the session, so a client
	// going away must not cut them short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()

	var g errgroup.Group
	if rs.primary {
		g.Go(func() error { c.loadPrimary(ctx, s.key()); return nil })
	}
	if rs.region {
		g.Go(func() error {
			if err := c.renderer.SetRegion(ctx, s.region); err != nil && !errors.Is(err, maprender.ErrStaleLoad) {
				c.logger.Warn("map region change failed", "region", s.region, "error", err)
			}
			return nil
		})
	}
	if rs.region || rs.primary {
		g.Go(func() error {
			c.loadWoredas(ctx, s.region, domain.AllowedWoredas(&c.user, s.region), &c.mapGen, "map")
			return nil
		})
	}
	if rs.regions && c.regionComparison() {
		g.Go(func() error { c.loadRegions(ctx); return nil })
	}
	if (rs.woredas || rs.regions) && c.woredaComparison(s) {
		g.Go(func() error {
			c.loadWoredas(ctx, s.compareRegion, domain.Woredas(s.compareRegion), &c.woredasGen, "woredas")
			return nil
		})
	}
	if rs.headline {
		g.Go(func() error { c.loadHeadline(ctx, s.lang); return nil })
	}
	_ = g.Wait()

	c.syncMap()
	c.checkEscalation(ctx)
}

func (c *Controller) loadPrimary(ctx context.Context, key domain.SeriesKey) {
	c.mu.Lock()
	c.primaryGen++
	gen := c.primaryGen
	c.mu.Unlock()

	series, err := c.deps.Source.Fetch(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	// A selection moved back to an already loaded key bumps no generation.
	if gen != c.primaryGen || c.closed || key != c.sel.key() {
		c.deps.Metrics.StaleResultsDropped.WithLabelValues("primary").Inc()
		return
	}
	if err != nil {
		// seriesKey keeps pointing elsewhere so the selection reads as not
		// loaded and the next Apply or Sync fetches again.
		c.logger.Warn("prediction fetch failed", "region", key.Region, "woreda", key.Woreda, "error", err)
		return
	}
	c.series = series
	c.seriesKey = key
}

func (c *Controller) loadRegions(ctx context.Context) {
	c.mu.Lock()
	c.regionsGen++
	gen := c.regionsGen
	c.mu.Unlock()

	var (
		mu      sync.Mutex
		results = make(map[domain.Region]domain.Series, len(domain.Regions))
		g       errgroup.Group
	)
	for _, r := range domain.Regions {
		g.Go(func() error {
			s, err := c.deps.Source.Fetch(ctx, domain.SeriesKey{Region: r})
			if err != nil {
				c.logger.Warn("region comparison fetch failed", "region", r, "error", err)
				return nil
			}
			mu.Lock()
			results[r] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.regionsGen || c.closed {
		c.deps.Metrics.StaleResultsDropped.WithLabelValues("regions").Inc()
		return
	}
	maps.Copy(c.regions, results)
}

// loadWoredas fetches the series of every listed woreda of region that is not
// already held, under the generation counter gen.
func (c *Controller) loadWoredas(ctx context.Context, region domain.Region, woredas []string, gen *uint64, loop string) {
	c.mu.Lock()
	*gen++
	mine := *gen
	var missing []domain.SeriesKey
	for _, w := range woredas {
		key := domain.SeriesKey{Region: region, Woreda: w}
		if _, ok := c.woredas[key]; !ok {
			missing = append(missing, key)
		}
	}
	c.mu.Unlock()
	if len(missing) == 0 {
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[domain.SeriesKey]domain.Series, len(missing))
		g       errgroup.Group
	)
	for _, key := range missing {
		g.Go(func() error {
			s, err := c.deps.Source.Fetch(ctx, key)
			if err != nil {
				c.logger.Warn("woreda prediction fetch failed", "region", key.Region, "woreda", key.Woreda, "error", err)
				return nil
			}
			mu.Lock()
			results[key] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if mine != *gen || c.closed {
		c.deps.Metrics.StaleResultsDropped.WithLabelValues(loop).Inc()
		return
	}
	maps.Copy(c.woredas, results)
}

func (c *Controller) loadHeadline(ctx context.Context, lang string) {
	c.mu.Lock()
	c.headlineGen++
	gen := c.headlineGen
	c.mu.Unlock()

	headline := translate.DefaultHeadline
	if c.deps.Translator != nil {
		headline = c.deps.Translator.Headline(ctx, lang)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.headlineGen || c.closed {
		c.deps.Metrics.StaleResultsDropped.WithLabelValues("headline").Inc()
		return
	}
	c.headline = headline
}

// syncMap pushes the current month's value of every feature to the renderer.
// Features without a woreda series fall back to the region value.
func (c *Controller) syncMap() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	s := c.sel
	var regionValue float64
	if s.woreda == "" && c.seriesKey == s.key() {
		regionValue = c.series.At(s.month)
	}
	if rs, ok := c.regions[s.region]; ok {
		regionValue = rs.At(s.month)
	}
	byFeature := make(map[string]float64)
	for key, series := range c.woredas {
		if key.Region == s.region {
			byFeature[key.Woreda] = series.At(s.month)
		}
	}
	if s.woreda != "" && c.seriesKey == s.key() {
		byFeature[s.woreda] = c.series.At(s.month)
	}
	c.mu.Unlock()

	if err := c.renderer.SetValues(maprender.Values{Region: regionValue, ByFeature: byFeature}); err != nil &&
		!errors.Is(err, maprender.ErrDestroyed) {
		c.logger.Warn("map values update failed", "error", err)
	}
}

// checkEscalation raises an alert when the selected key's phase changes into
// Warn or Alert. Re-evaluating an unchanged phase raises nothing.
func (c *Controller) checkEscalation(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.seriesKey != c.sel.key() {
		c.mu.Unlock()
		return
	}
	key := c.seriesKey
	month := c.sel.month
	a := domain.Assess(c.series.At(month))
	prev, seen := c.phases[key]
	c.phases[key] = a.Phase
	if !a.Phase.Escalated() || (seen && prev == a.Phase) {
		c.mu.Unlock()
		return
	}
	alert := domain.NewAlert(c.user.Email, key, month, a)
	c.lastAlert = &alert
	c.mu.Unlock()

	c.deps.Metrics.AlertsRaised.WithLabelValues(a.Phase.String()).Inc()
	c.logger.Info("drought alert raised",
		"alert_id", alert.ID,
		"region", alert.Region,
		"woreda", alert.Woreda,
		"phase", alert.Phase,
		"cdi", alert.CDI,
	)
	if c.deps.Notifier == nil {
		return
	}
	if err := c.deps.Notifier.NotifyAlert(ctx, alert); err != nil {
		c.logger.Error("alert notification failed", "alert_id", alert.ID, "error", err)
	}
}

// ReportInput is a report generation request from the Reports tab.
type ReportInput struct {
	Region string `json:"region"`
	Type   string `json:"type"`
	Months int    `json:"months"`
	Title  string `json:"title"`
}

// RequestReport validates in and hands it to the report generator.
func (c *Controller) RequestReport(ctx context.Context, in ReportInput) (domain.ReportRequest, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return domain.ReportRequest{}, ErrClosed
	}

	region, err := domain.ParseRegion(in.Region)
	if err != nil {
		return domain.ReportRequest{}, fmt.Errorf("%w: %w", domain.ErrInvalidReport, err)
	}
	if !domain.CanViewRegion(&c.user, region) {
		return domain.ReportRequest{}, fmt.Errorf("%w: %s", ErrForbiddenRegion, region)
	}
	req, err := domain.NewReportRequest(region, in.Type, in.Months, in.Title, c.user.Email)
	if err != nil {
		return domain.ReportRequest{}, err
	}
	if err := c.deps.Reports.RequestReport(ctx, req); err != nil {
		c.deps.Metrics.ReportRequests.WithLabelValues("error").Inc()
		return domain.ReportRequest{}, fmt.Errorf("request report: %w", err)
	}
	c.deps.Metrics.ReportRequests.WithLabelValues("success").Inc()
	return req, nil
}

// SelectFeature handles a click on a map feature: the popup is returned and,
// when the user may select that woreda, it becomes the selection.
func (c *Controller) SelectFeature(ctx context.Context, name string) (maprender.Popup, Snapshot, error) {
	popup, err := c.renderer.Click(name)
	if err != nil {
		return maprender.Popup{}, Snapshot{}, err
	}
	snap, err := c.Apply(ctx, Update{Woreda: &popup.Name})
	return popup, snap, err
}

// SelectAt selects the woreda whose feature contains p.
func (c *Controller) SelectAt(ctx context.Context, p domain.LatLng) (maprender.Popup, Snapshot, error) {
	popup, err := c.renderer.ClickAt(p)
	if err != nil {
		return maprender.Popup{}, Snapshot{}, err
	}
	snap, err := c.Apply(ctx, Update{Woreda: &popup.Name})
	return popup, snap, err
}

// Map returns the rendered map layer.
func (c *Controller) Map() (maprender.Layer, error) {
	layer, err := c.renderer.Snapshot()
	if errors.Is(err, maprender.ErrDestroyed) {
		return maprender.Layer{}, ErrClosed
	}
	return layer, err
}

// User is the session's user.
func (c *Controller) User() domain.User {
	return c.user
}

// Close tears the controller down. Late completions are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.unsub != nil {
		c.unsub()
	}
	c.renderer.Destroy()
}
