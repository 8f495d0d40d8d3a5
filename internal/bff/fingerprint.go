// Package bff implements the aggregation/cache tier (component E): a
// deterministic fingerprint over route + inputs, at-most-one-in-flight
// fetch, TTL classes per endpoint kind, entity-keyed invalidation, and
// fan-out aggregation. It never embeds business logic beyond
// composition, authorization, and caching (spec §4.E).
package bff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/saastenant/orchestrator/internal/tenant"
)

// RouteKind names one class of aggregate endpoint, each with its own
// TTL (spec §4.E).
type RouteKind string

const (
	RouteEntity         RouteKind = "entity"
	RouteList           RouteKind = "list"
	RouteDashboard      RouteKind = "dashboard"
	RouteStorageSummary RouteKind = "storage_summary"
	RouteUploadProgress RouteKind = "upload_progress"
)

// Fingerprint is a deterministic function of the route kind and every
// input that affects the response body, including tenant identity and
// option flags. It MUST be stable across process restarts, so it never
// incorporates anything time- or process-local.
func Fingerprint(kind RouteKind, tc tenant.Context, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2+3)
	ordered = append(ordered, "kind", string(kind), "tenant", tc.Tenant.TenantID)
	for _, k := range keys {
		ordered = append(ordered, k, params[k])
	}

	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// TTLFor returns the cache lifetime for a route kind (spec §4.E: ~300s
// single entity, ~180s lists, ~300s dashboards, ~600s storage
// summaries, ~30s upload progress).
func TTLFor(kind RouteKind) int {
	switch kind {
	case RouteEntity:
		return 300
	case RouteList:
		return 180
	case RouteDashboard:
		return 300
	case RouteStorageSummary:
		return 600
	case RouteUploadProgress:
		return 30
	default:
		return 60
	}
}
