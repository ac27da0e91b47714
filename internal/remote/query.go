package remote

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/starford/setlist/internal/models"
)

// EncodeQuery renders the filter part of q as URL parameters:
// one "where=field,op,<json value>" per predicate and "order=field".
func EncodeQuery(q Query) (url.Values, error) {
	v := url.Values{}
	for _, p := range q.Where {
		raw, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("remote: encode predicate %s: %w", p.Field, err)
		}
		v.Add("where", p.Field+","+string(p.Op)+","+string(raw))
	}
	if q.OrderBy != "" {
		v.Set("order", q.OrderBy)
	}
	return v, nil
}

// DecodeQuery is the inverse of EncodeQuery.
func DecodeQuery(collection string, v url.Values) (Query, error) {
	q := Query{Collection: collection, OrderBy: v.Get("order")}
	for _, w := range v["where"] {
		parts := strings.SplitN(w, ",", 3)
		if len(parts) != 3 {
			return Query{}, fmt.Errorf("remote: malformed where %q", w)
		}
		dec := json.NewDecoder(strings.NewReader(parts[2]))
		dec.UseNumber()
		var val any
		if err := dec.Decode(&val); err != nil {
			return Query{}, fmt.Errorf("remote: where %q value: %w", w, err)
		}
		p := models.Where(parts[0], models.Op(parts[1]), val)
		if err := p.Validate(); err != nil {
			return Query{}, err
		}
		q.Where = append(q.Where, p)
	}
	return q, nil
}
