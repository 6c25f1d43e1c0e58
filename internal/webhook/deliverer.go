package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EndpointStore lists the delivery URLs configured for an org.
type EndpointStore interface {
	EndpointsFor(ctx context.Context, orgID string) ([]string, error)
}

// PGEndpointStore reads webhook endpoints from PostgreSQL.
type PGEndpointStore struct {
	pool *pgxpool.Pool
}

// NewPGEndpointStore constructs the store.
func NewPGEndpointStore(pool *pgxpool.Pool) *PGEndpointStore {
	return &PGEndpointStore{pool: pool}
}

// EndpointsFor returns enabled endpoint URLs for the org.
func (s *PGEndpointStore) EndpointsFor(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT url FROM webhook_endpoints WHERE org_id=$1 AND enabled`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

// Deliverer posts events to org endpoints. It runs inside the worker;
// a non-2xx response or transport error fails the task so asynq retries it.
type Deliverer struct {
	endpoints EndpointStore
	client    *http.Client
	logger    *slog.Logger
}

// NewDeliverer constructs a Deliverer. A nil http client gets a 10s timeout
// default.
func NewDeliverer(endpoints EndpointStore, client *http.Client, logger *slog.Logger) *Deliverer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{endpoints: endpoints, client: client, logger: logger}
}

// Deliver posts the event to every endpoint of its org.
func (d *Deliverer) Deliver(ctx context.Context, event Event) error {
	urls, err := d.endpoints.EndpointsFor(ctx, event.OrgID)
	if err != nil {
		return fmt.Errorf("webhook: endpoints for %s: %w", event.OrgID, err)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: encode event: %w", err)
	}
	for _, url := range urls {
		if err := d.post(ctx, url, body); err != nil {
			d.logger.Warn("webhook delivery failed",
				slog.String("url", url),
				slog.String("event", event.Type),
				slog.Any("error", err))
			return err
		}
	}
	return nil
}

func (d *Deliverer) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}
	return nil
}
