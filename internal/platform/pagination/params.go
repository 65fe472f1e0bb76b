package pagination

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// MaxPageSize caps pageSize to prevent unbounded queries.
	MaxPageSize = 100
)

// ErrInvalidPageSize is returned for non-numeric or non-positive page sizes.
var ErrInvalidPageSize = errors.New("pagination: invalid pageSize")

// Parse extracts pageSize and pageToken from query values. The token is validated but kept encoded.
func Parse(values url.Values) (domain.Pagination, error) {
	size := DefaultPageSize
	if raw := strings.TrimSpace(values.Get("pageSize")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return domain.Pagination{}, ErrInvalidPageSize
		}
		size = min(n, MaxPageSize)
	}
	token := strings.TrimSpace(values.Get("pageToken"))
	if _, err := DecodeToken(token); err != nil {
		return domain.Pagination{}, err
	}
	return domain.Pagination{PageSize: size, PageToken: token}, nil
}
