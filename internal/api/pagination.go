package api

import (
	"net/http"
	"strconv"
)

// parsePagination normalizes limit/offset query params.
// limit=50, offset=0. limit capped at 100, minimum 1.
// offset min 0
func parsePagination(limit, offset *int) (int64, int64) {
	l := int64(50)
	o := int64(0)
	if limit != nil {
		l = int64(*limit)
	}
	if offset != nil {
		o = int64(*offset)
	}
	l = min(max(l, 1), 100)
	o = max(o, 0)
	return l, o
}

// queryInt returns nil when name is absent.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func pagination(r *http.Request) (int64, int64, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	l, o := parsePagination(limit, offset)
	return l, o, nil
}
