// Package listing implements the paginated list controller shared by every
// list view: it tracks the current page, pagination totals, the loading flag
// and the active filters, and re-fetches whenever any of them change.
package listing

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/carehub/pharmacy-portal/internal/platform/apiclient"
	"github.com/carehub/pharmacy-portal/pkg/pagination"
)

// ItemsPerPage is fixed across all list views.
const ItemsPerPage = pagination.DefaultLimit

// ErrInFlight is returned by TryLoad when a load is already running.
var ErrInFlight = errors.New("listing: load already in flight")

// Query is what a Fetcher receives for one page request.
type Query struct {
	Page   int
	Limit  int
	Search string
	Status string
	Extra  map[string]string
}

// Values encodes the query as backend query parameters. An empty status or
// the "all" tab sends no status filter.
func (q Query) Values() url.Values {
	v := pagination.Params{Page: q.Page, Limit: q.Limit}.Values()
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
	}
	if s := strings.TrimSpace(q.Status); s != "" && s != "all" {
		v.Set("status", s)
	}
	for k, val := range q.Extra {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

// Page is one fetched page. Meta is nil when the backend sent no pagination
// metadata.
type Page[T any] struct {
	Items []T
	Meta  *pagination.Meta
}

// Fetcher loads one page of items.
type Fetcher[T any] func(ctx context.Context, q Query) (*Page[T], error)

// Alerter receives user-visible error messages.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(ctx context.Context, message string)

func (f AlertFunc) Alert(ctx context.Context, message string) { f(ctx, message) }

// EmptyState distinguishes "nothing exists" from "nothing matches".
type EmptyState string

const (
	EmptyNone    EmptyState = ""
	EmptyNoData  EmptyState = "no_data"
	EmptyNoMatch EmptyState = "no_match"
)

// State is a snapshot of a controller's view state.
type State[T any] struct {
	Items       []T               `json:"items"`
	CurrentPage int               `json:"currentPage"`
	TotalPages  int               `json:"totalPages"`
	TotalItems  int               `json:"totalItems"`
	Loading     bool              `json:"loading"`
	Search      string            `json:"search,omitempty"`
	Status      string            `json:"status,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	Empty       EmptyState        `json:"empty,omitempty"`
	Error       string            `json:"error,omitempty"`
	Pager       Pager             `json:"pager"`
}

// PagerWindow is the number of page buttons a pager shows.
const PagerWindow = 5

// Pager lays out the page control under a list.
type Pager struct {
	HasPrevious bool  `json:"hasPrevious"`
	HasNext     bool  `json:"hasNext"`
	Pages       []int `json:"pages"`
	// FirstItem and LastItem are 1-based positions of the visible rows, zero
	// when the page is empty.
	FirstItem int `json:"firstItem"`
	LastItem  int `json:"lastItem"`
}

func newPager(page, totalPages, totalItems, count int) Pager {
	meta := pagination.Meta{Page: page, Limit: ItemsPerPage, Total: totalItems, TotalPages: totalPages}
	p := Pager{
		HasPrevious: meta.HasPrevious(),
		HasNext:     meta.HasNext(),
		Pages:       meta.Window(PagerWindow),
	}
	if count > 0 {
		p.FirstItem = pagination.Params{Page: page, Limit: ItemsPerPage}.Offset() + 1
		p.LastItem = p.FirstItem + count - 1
	}
	return p
}

// Option configures a Controller before its first load.
type Option func(*options)

type options struct {
	alerter Alerter
	logger  zerolog.Logger
	page    int
	search  string
	status  string
	filters map[string]string
}

// WithAlerter sets the sink for user-visible errors.
func WithAlerter(a Alerter) Option {
	return func(o *options) { o.alerter = a }
}

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPage sets the initial page.
func WithPage(page int) Option {
	return func(o *options) { o.page = page }
}

// WithSearch sets the initial search term.
func WithSearch(s string) Option {
	return func(o *options) { o.search = s }
}

// WithStatus sets the initial status tab.
func WithStatus(s string) Option {
	return func(o *options) { o.status = s }
}

// WithFilter sets an initial extra filter.
func WithFilter(key, value string) Option {
	return func(o *options) {
		if o.filters == nil {
			o.filters = map[string]string{}
		}
		o.filters[key] = value
	}
}

// Controller owns the view state of one list. It is safe for concurrent use
// so that a background poller and user actions can drive the same list.
type Controller[T any] struct {
	fetch   Fetcher[T]
	alerter Alerter
	logger  zerolog.Logger

	mu         sync.Mutex
	state      State[T]
	generation uint64
	inFlight   int
}

// NewController creates a controller; nothing is fetched until Load.
func NewController[T any](fetch Fetcher[T], opts ...Option) *Controller[T] {
	o := options{logger: zerolog.Nop(), page: 1}
	for _, fn := range opts {
		fn(&o)
	}
	if o.page < 1 {
		o.page = 1
	}
	c := &Controller[T]{
		fetch:   fetch,
		alerter: o.alerter,
		logger:  o.logger,
		state: State[T]{
			Items:       []T{},
			CurrentPage: o.page,
			TotalPages:  1,
			Search:      o.search,
			Status:      o.status,
			Filters:     o.filters,
		},
	}
	return c
}

// State returns a copy of the current view state.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Items = append([]T(nil), c.state.Items...)
	if s.Items == nil {
		s.Items = []T{}
	}
	if c.state.Filters != nil {
		s.Filters = make(map[string]string, len(c.state.Filters))
		for k, v := range c.state.Filters {
			s.Filters[k] = v
		}
	}
	s.Pager = newPager(s.CurrentPage, s.TotalPages, s.TotalItems, len(s.Items))
	return s
}

// Load fetches the current page with the current filters. On failure the
// list is reset to an empty first page, the error is alerted and returned.
// A load overtaken by a newer load or a local mutation is discarded.
func (c *Controller[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	return c.loadLocked(ctx)
}

// TryLoad is Load unless another load is already running, in which case it
// returns ErrInFlight without fetching.
func (c *Controller[T]) TryLoad(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight > 0 {
		c.mu.Unlock()
		return ErrInFlight
	}
	return c.loadLocked(ctx)
}

// loadLocked must be entered with c.mu held; it releases it.
func (c *Controller[T]) loadLocked(ctx context.Context) error {
	c.generation++
	gen := c.generation
	c.inFlight++
	c.state.Loading = true
	q := c.queryLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.state.Loading = c.inFlight > 0
		c.mu.Unlock()
	}()

	page, err := c.fetch(ctx, q)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug().Int("page", q.Page).Msg("discarding stale list response")
		return nil
	}
	if err != nil {
		msg := apiclient.Message(err)
		c.state.Items = []T{}
		c.state.TotalPages = 1
		c.state.TotalItems = 0
		c.state.Error = msg
		c.state.Empty = c.emptyLocked()
		c.mu.Unlock()

		c.logger.Warn().Err(err).Int("page", q.Page).Msg("list fetch failed")
		if c.alerter != nil {
			c.alerter.Alert(ctx, msg)
		}
		return err
	}

	items := []T{}
	if page != nil && page.Items != nil {
		items = page.Items
	}
	c.state.Items = items
	c.state.Error = ""
	if page != nil && page.Meta != nil {
		c.state.TotalPages = page.Meta.TotalPages
		c.state.TotalItems = page.Meta.Total
	} else {
		c.state.TotalPages = 1
		c.state.TotalItems = len(items)
	}
	if c.state.TotalPages < 1 {
		c.state.TotalPages = 1
	}
	if c.state.TotalItems < 0 {
		c.state.TotalItems = 0
	}
	c.state.Empty = c.emptyLocked()
	c.mu.Unlock()
	return nil
}

func (c *Controller[T]) queryLocked() Query {
	q := Query{
		Page:   c.state.CurrentPage,
		Limit:  ItemsPerPage,
		Search: c.state.Search,
		Status: c.state.Status,
	}
	if len(c.state.Filters) > 0 {
		q.Extra = make(map[string]string, len(c.state.Filters))
		for k, v := range c.state.Filters {
			q.Extra[k] = v
		}
	}
	return q
}

func (c *Controller[T]) emptyLocked() EmptyState {
	if len(c.state.Items) > 0 {
		return EmptyNone
	}
	if c.filterActiveLocked() {
		return EmptyNoMatch
	}
	return EmptyNoData
}

func (c *Controller[T]) filterActiveLocked() bool {
	if strings.TrimSpace(c.state.Search) != "" {
		return true
	}
	if s := strings.TrimSpace(c.state.Status); s != "" && s != "all" {
		return true
	}
	for _, v := range c.state.Filters {
		if v != "" {
			return true
		}
	}
	return false
}

// ChangePage moves to page and loads it. Pages below 1 are clamped; pages
// beyond TotalPages are not checked.
func (c *Controller[T]) ChangePage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	c.state.CurrentPage = page
	return c.loadLocked(ctx)
}

// SetSearch changes the search term, resets to page 1 and loads.
func (c *Controller[T]) SetSearch(ctx context.Context, search string) error {
	c.mu.Lock()
	c.state.Search = search
	c.state.CurrentPage = 1
	return c.loadLocked(ctx)
}

// SetStatus changes the status tab, resets to page 1 and loads.
func (c *Controller[T]) SetStatus(ctx context.Context, status string) error {
	c.mu.Lock()
	c.state.Status = status
	c.state.CurrentPage = 1
	return c.loadLocked(ctx)
}

// SetFilter changes an extra filter, resets to page 1 and loads. An empty
// value clears the filter.
func (c *Controller[T]) SetFilter(ctx context.Context, key, value string) error {
	c.mu.Lock()
	if value == "" {
		delete(c.state.Filters, key)
	} else {
		if c.state.Filters == nil {
			c.state.Filters = map[string]string{}
		}
		c.state.Filters[key] = value
	}
	c.state.CurrentPage = 1
	return c.loadLocked(ctx)
}

// Replace swaps the first item matching match for item, in place. It is used
// after a mutation succeeds. Any load already in flight is discarded when it
// completes so that it cannot overwrite the replacement.
func (c *Controller[T]) Replace(match func(T) bool, item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.state.Items {
		if match(c.state.Items[i]) {
			c.state.Items[i] = item
			c.generation++
			return true
		}
	}
	return false
}

// Remove deletes the first item matching match.
func (c *Controller[T]) Remove(match func(T) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.state.Items {
		if match(c.state.Items[i]) {
			c.state.Items = append(c.state.Items[:i:i], c.state.Items[i+1:]...)
			if c.state.TotalItems > 0 {
				c.state.TotalItems--
			}
			c.state.Empty = c.emptyLocked()
			c.generation++
			return true
		}
	}
	return false
}

// Find returns the first item matching match.
func (c *Controller[T]) Find(match func(T) bool) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.state.Items {
		if match(it) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// PageParam parses a page number from user input, defaulting to 1.
func PageParam(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
