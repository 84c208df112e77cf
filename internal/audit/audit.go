package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/backend-metrature/internal/common"
	"github.com/noah-isme/backend-metrature/internal/obs"
)

// Actions recorded for pricing configuration changes.
const (
	ActionReplaceTiers    = "item.tiers.replace"
	ActionReplaceMinimums = "item.minimums.replace"
)

// Entry is one recorded configuration change.
type Entry struct {
	ID        int64           `json:"id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	ItemID    string          `json:"item_id"`
	Method    string          `json:"method"`
	Route     string          `json:"route"`
	Status    int             `json:"status"`
	ClientIP  string          `json:"client_ip,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists and lists audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, itemID string, limit int) ([]Entry, error)
}

// Service records who changed which item configuration and with what outcome.
type Service struct {
	Store   Store
	Enabled bool
}

// Record persists an entry for req. Anonymous callers are recorded as such;
// the admin middleware normally sets the token subject first. Call it after
// the handler ran so the chi route pattern is complete.
func (s Service) Record(ctx context.Context, req *http.Request, action, itemID string, status int, metadata map[string]any) error {
	if !s.Enabled {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	actor, ok := common.Subject(req.Context())
	if !ok {
		actor = "anonymous"
	}
	route := obs.RoutePattern(req)
	if route == "" {
		route = req.URL.Path
	}
	if status == 0 {
		status = http.StatusOK
	}
	var meta json.RawMessage
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		meta = data
	}

	return s.Store.Insert(ctx, Entry{
		Actor:     actor,
		Action:    strings.TrimSpace(action),
		ItemID:    strings.TrimSpace(itemID),
		Method:    req.Method,
		Route:     route,
		Status:    status,
		ClientIP:  common.ClientIP(req),
		RequestID: middleware.GetReqID(req.Context()),
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	})
}
