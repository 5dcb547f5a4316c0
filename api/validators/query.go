package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
)

// IntParam reads an optional integer query parameter bounded by [lo, hi].
func IntParam(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err == nil && n >= lo && n <= hi {
		return n, nil
	}
	return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid query parameter").WithDetails(map[string]any{
		"field": key,
		"min":   lo,
		"max":   hi,
	})
}
