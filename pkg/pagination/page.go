package pagination

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
)

// Page is one page of a collection response.
type Page[T any] interface {
	// Items returns the page's items in server order.
	Items() []T

	// NextPageRequest returns the request for the following page, if any.
	NextPageRequest() (*pipeline.Request, bool)

	// DeltaLink returns the delta link, present on the last page of a
	// change-tracking round.
	DeltaLink() (string, bool)
}

// PageParser turns a page response into a Page. It owns the response body.
type PageParser[T any] func(resp *http.Response) (Page[T], error)

// CollectionPage is the standard JSON collection page.
type CollectionPage[T any] struct {
	Value         []T    `json:"value"`
	ODataNextLink string `json:"@odata.nextLink,omitempty"`
	ODataDelta    string `json:"@odata.deltaLink,omitempty"`
}

// Items implements Page.
func (p *CollectionPage[T]) Items() []T {
	return p.Value
}

// NextPageRequest implements Page.
func (p *CollectionPage[T]) NextPageRequest() (*pipeline.Request, bool) {
	if p.ODataNextLink == "" {
		return nil, false
	}
	req, err := pipeline.NewRequest(http.MethodGet, p.ODataNextLink, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("Accept", "application/json")
	return req, true
}

// DeltaLink implements Page.
func (p *CollectionPage[T]) DeltaLink() (string, bool) {
	return p.ODataDelta, p.ODataDelta != ""
}

// ParseCollectionPage decodes a CollectionPage from a 2xx response. Other
// statuses are returned as *sdkerrors.ServiceError.
func ParseCollectionPage[T any](resp *http.Response) (Page[T], error) {
	if err := sdkerrors.CheckResponse(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page CollectionPage[T]
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &page, nil
}
