package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ResolveLatestItinerary returns the id of the most recently imported
// itinerary whose name matches like, or of any itinerary when like is empty.
func ResolveLatestItinerary(ctx context.Context, db *sql.DB, like string) (string, error) {
	like = strings.TrimSpace(like)
	q := `
SELECT id
FROM public.itineraries
WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var id sql.NullString
	if err := db.QueryRowContext(ctx, q, like).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no itinerary found like %q", like)
		}
		return "", err
	}
	if !id.Valid || id.String == "" {
		return "", fmt.Errorf("empty itinerary id for %q", like)
	}
	return id.String, nil
}
