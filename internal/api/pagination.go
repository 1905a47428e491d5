package api

import (
	"strconv" // String conversion
	"strings" // Query parsing
	"time"    // Date filters

	"spray_ledger/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin" // Gin web framework
)

const (
	defaultPageSize = 20               // Page size when none is given
	maxPageSize     = 100              // Upper bound on page_size
	cacheTTL        = 60 * time.Second // Lifetime of cached reads
)

// page is a 1-based page request
type page struct {
	Number int
	Size   int
}

// parsePage reads page and page_size, ignoring invalid values
func parsePage(c *gin.Context) page {
	p := page{Number: 1, Size: defaultPageSize}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Number = v // Set page if valid
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= maxPageSize {
		p.Size = v // Set page size if valid
	}
	return p
}

func (p page) offset() int { return (p.Number - 1) * p.Size }

func (p page) totalPages(total int64) int {
	return (int(total) + p.Size - 1) / p.Size
}

// transactionPage is one page of ledger entries as returned and cached
type transactionPage struct {
	Transactions []domain.Transaction `json:"transactions"` // List of transactions
	Page         int                  `json:"page"`         // Current page
	PageSize     int                  `json:"page_size"`    // Page size
	Total        int64                `json:"total"`        // Total transactions
	TotalPages   int                  `json:"total_pages"`  // Total pages
	Cached       bool                 `json:"cached"`       // Served from Redis
}

func newTransactionPage(txs []domain.Transaction, p page, total int64) transactionPage {
	if txs == nil {
		txs = []domain.Transaction{} // Render [] rather than null
	}
	return transactionPage{
		Transactions: txs,
		Page:         p.Number,
		PageSize:     p.Size,
		Total:        total,
		TotalPages:   p.totalPages(total),
	}
}

// parseTransactionFilter reads type, status, from and to. Dates are RFC 3339
// or YYYY-MM-DD; a bare "to" date covers the whole day.
func parseTransactionFilter(c *gin.Context, p page) (domain.TransactionFilter, error) {
	f := domain.TransactionFilter{Limit: p.Size, Offset: p.offset()}
	var err error
	if v := c.Query("type"); v != "" {
		if f.Type, err = domain.ParseTransactionType(v); err != nil {
			return f, err
		}
	}
	if v := c.Query("status"); v != "" {
		if f.Status, err = domain.ParsePaymentStatus(v); err != nil {
			return f, err
		}
	}
	if v := c.Query("from"); v != "" {
		if f.From, _, err = parseDate(v); err != nil {
			return f, err
		}
	}
	if v := c.Query("to"); v != "" {
		var dateOnly bool
		if f.To, dateOnly, err = parseDate(v); err != nil {
			return f, err
		}
		if dateOnly {
			f.To = f.To.Add(24*time.Hour - time.Nanosecond) // End of that day
		}
	}
	return f, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false, domain.Errorf(domain.ErrValidation, "invalid date %q", s)
	}
	return t, true, nil
}

// queryKey renders the listed query parameters into a cache key suffix
func queryKey(c *gin.Context, p page, params ...string) string {
	parts := []string{"page=" + strconv.Itoa(p.Number), "size=" + strconv.Itoa(p.Size)}
	for _, k := range params {
		parts = append(parts, k+"="+c.Query(k)) // Append key-value pair
	}
	return strings.Join(parts, ":")
}
