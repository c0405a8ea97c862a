package storage

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"IncidentScanner/internal/domain"
)

// SubscriptionIndex joins verified subscribers to the vendors of their lists.
// Vendor names are normalized so they match incident vendor keys.
func (s *Store) SubscriptionIndex(ctx context.Context) (domain.SubscriptionIndex, error) {
	rows, err := s.sb.Select("v.name", "s.email").
		From("subscribers s").
		Join("vendor_list_subscribers vls ON vls.subscriber_id = s.id").
		Join("vendor_list_vendors vlv ON vlv.vendor_list_id = vls.vendor_list_id").
		Join("vendors v ON v.id = vlv.vendor_id").
		Where(sq.Eq{"s.verified": true}).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	index := domain.SubscriptionIndex{}
	for rows.Next() {
		var vendor, email string
		if err := rows.Scan(&vendor, &email); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		key := domain.NormalizeVendor(vendor)
		email = strings.TrimSpace(email)
		if key == "" || email == "" {
			continue
		}
		index.Add(key, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return index, nil
}
