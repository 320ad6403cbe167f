package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-querystring/query"

	"github.com/BartekS5/reviewseed/pkg/logger"
)

// DefaultFeedOrder sorts Socrata pages by row identifier so offsets are stable.
const DefaultFeedOrder = ":id"

// FeedQuery holds the paging and filter parameters of one feed request.
type FeedQuery struct {
	Category string `url:"category,omitempty"`
	Limit    int    `url:"$limit"`
	Offset   int    `url:"$offset"`
	Order    string `url:"$order,omitempty"`
}

// FeedExtractor pages through a GeoJSON feature feed with one GET per page.
type FeedExtractor struct {
	Endpoint   string
	Category   string
	Params     map[string]string
	MaxRecords int
	// Order is sent as $order unless the endpoint or Params already sort.
	Order   string
	Timeout time.Duration
	Client  *http.Client

	offset    int
	done      bool
	lastFirst []byte
}

func NewFeedExtractor(endpoint, category string, timeout time.Duration) *FeedExtractor {
	return &FeedExtractor{
		Endpoint: endpoint,
		Category: category,
		Order:    DefaultFeedOrder,
		Timeout:  timeout,
		Client:   &http.Client{},
	}
}

type featureCollection struct {
	Features *[]feature `json:"features"`
}

type feature struct {
	Properties map[string]any `json:"properties"`
	Geometry   *struct {
		Coordinates []any `json:"coordinates"`
	} `json:"geometry"`
}

func (e *FeedExtractor) Extract(ctx context.Context, pageSize int) ([]RawRecord, error) {
	if e.done {
		return nil, io.EOF
	}
	if pageSize < 1 {
		pageSize = 1
	}
	limit := pageSize
	if e.MaxRecords > 0 && e.MaxRecords-e.offset < limit {
		limit = e.MaxRecords - e.offset
	}
	if limit <= 0 {
		e.done = true
		return nil, io.EOF
	}

	pageURL, err := e.pageURL(limit)
	if err != nil {
		return nil, err
	}
	features, err := e.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	logger.Debug("feed page fetched", "url", pageURL, "features", len(features))

	if len(features) > 0 {
		first, _ := json.Marshal(features[0])
		if e.offset > 0 && bytes.Equal(first, e.lastFirst) {
			logger.Warn("feed returned the previous page again, stopping", "url", pageURL)
			e.done = true
			return nil, io.EOF
		}
		e.lastFirst = first
	}
	if len(features) > limit {
		logger.Warn("feed ignored $limit, treating the response as unpaged", "url", pageURL, "features", len(features), "limit", limit)
		e.done = true
		if e.MaxRecords > 0 && len(features) > e.MaxRecords-e.offset {
			features = features[:e.MaxRecords-e.offset]
		}
	}

	page := make([]RawRecord, 0, len(features))
	for i, f := range features {
		page = append(page, toRawRecord(e.offset+i+1, f))
	}
	e.offset += len(features)
	if len(features) < limit || (e.MaxRecords > 0 && e.offset >= e.MaxRecords) {
		e.done = true
	}

	if len(page) == 0 {
		return nil, io.EOF
	}
	return page, nil
}

func (e *FeedExtractor) pageURL(limit int) (string, error) {
	u, err := url.Parse(e.Endpoint)
	if err != nil {
		return "", sourceError("invalid feed URL %q: %v", e.Endpoint, err)
	}
	q := u.Query()
	for k, v := range e.Params {
		q.Set(k, v)
	}
	order := e.Order
	if q.Has("$order") {
		order = ""
	}

	params, err := query.Values(FeedQuery{Category: e.Category, Limit: limit, Offset: e.offset, Order: order})
	if err != nil {
		return "", sourceError("encoding feed query: %v", err)
	}
	for k := range params {
		q.Set(k, params.Get(k))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *FeedExtractor) fetch(ctx context.Context, pageURL string) ([]feature, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, sourceError("building request for %s: %v", pageURL, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode}
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("%w: decoding feed response from %s: %w", ErrSource, pageURL, err)
	}
	if fc.Features == nil {
		return nil, sourceError("feed response from %s has no \"features\" field", pageURL)
	}
	return *fc.Features, nil
}

// toRawRecord flattens a feature: its properties plus longitude/latitude
// taken from the [lon, lat] geometry pair.
func toRawRecord(position int, f feature) RawRecord {
	rec := RawRecord{Position: position, Fields: make(map[string]any, len(f.Properties)+2)}
	for k, v := range f.Properties {
		rec.Fields[k] = v
	}
	if f.Geometry == nil || f.Geometry.Coordinates == nil {
		return rec
	}

	coords := f.Geometry.Coordinates
	if len(coords) != 2 {
		rec.Defect = fmt.Errorf("geometry has %d coordinates, want [longitude, latitude]", len(coords))
		return rec
	}
	lon, lonOK := coords[0].(float64)
	lat, latOK := coords[1].(float64)
	if !lonOK || !latOK {
		rec.Defect = fmt.Errorf("geometry coordinates are not numbers")
		return rec
	}
	rec.Fields["longitude"] = lon
	rec.Fields["latitude"] = lat
	return rec
}

func (e *FeedExtractor) Close() error {
	e.done = true
	if e.Client != nil {
		e.Client.CloseIdleConnections()
	}
	return nil
}
