package fiware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Orion talks to the Orion Context Broker NGSI v2 API.
type Orion struct {
	api      transport
	pageSize int
}

// NewOrion builds a client for the broker at baseURL.
func NewOrion(baseURL string, opts Options) *Orion {
	opts = opts.withDefaults()
	return &Orion{
		api:      newTransport(baseURL, opts),
		pageSize: opts.PageSize,
	}
}

// ListSubscriptions returns every subscription of the tenant.
func (o *Orion) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var all []Subscription
	for offset := 0; ; {
		q := pageQuery(o.pageSize, offset)
		q.Set("options", "count")

		var page []Subscription
		header, err := o.api.do(ctx, http.MethodGet, "/v2/subscriptions", q, nil, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		total := -1
		if v := header.Get(headerTotalCount); v != "" {
			if n, convErr := strconv.Atoi(v); convErr == nil {
				total = n
			}
		}
		if !morePages(len(all), len(page), o.pageSize, total) {
			return all, nil
		}
		offset += len(page)
	}
}

// CreateSubscription registers sub and returns the id Orion assigned, taken
// from the Location header when present.
func (o *Orion) CreateSubscription(ctx context.Context, sub Subscription) (string, error) {
	header, err := o.api.do(ctx, http.MethodPost, "/v2/subscriptions", nil, sub, nil)
	if err != nil {
		return "", err
	}
	return subscriptionIDFromLocation(header.Get("Location")), nil
}

func subscriptionIDFromLocation(location string) string {
	id, ok := strings.CutPrefix(location, "/v2/subscriptions/")
	if !ok {
		return ""
	}
	return id
}
