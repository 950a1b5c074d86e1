package services

import (
	"sort"

	"order_dashboard/internal/aggregate"
	"order_dashboard/internal/filter"
	"order_dashboard/internal/models"
	"order_dashboard/internal/realtime"
	"order_dashboard/internal/session"
)

// ViewConfig is the per-screen configuration of an order view. Every view
// shares the same repository, filter and aggregation code; only these knobs
// differ.
type ViewConfig struct {
	Name       string
	Roles      []session.Role
	Comparator filter.Comparator
	Evict      realtime.EvictRule
	// BaseFacets fill the facets a request leaves disabled.
	BaseFacets filter.Facets
	GroupBy    aggregate.GroupFunc
}

// Allows reports whether role may open the view. Admins may open any view.
func (v ViewConfig) Allows(role session.Role) bool {
	if role == session.Admin || role == session.SuperAdmin {
		return true
	}
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Production and dispatch start from approved orders unless the request
// picks another approval status.
var approvedOnly = filter.Facets{Approval: models.ApprovalApproved}

var viewRegistry = map[string]ViewConfig{
	"sales": {
		Name:       "sales",
		Roles:      []session.Role{session.Sales},
		Comparator: filter.ByRecency,
		GroupBy:    aggregate.ByCreator,
	},
	"production-approval": {
		Name:       "production-approval",
		Roles:      []session.Role{session.ProductionApproval},
		Comparator: filter.BySODateDesc,
		Evict: func(o *models.Order) bool {
			return o.SOStatus != models.ApprovalPending
		},
		GroupBy: aggregate.ByCreator,
	},
	"production": {
		Name:       "production",
		Roles:      []session.Role{session.Production},
		Comparator: filter.ByRecency,
		BaseFacets: approvedOnly,
		GroupBy:    aggregate.ByField(func(o *models.Order) string { return o.FulfillingStatus }),
	},
	"installation": {
		Name:       "installation",
		Roles:      []session.Role{session.Installation},
		Comparator: filter.ByRecency,
		Evict: func(o *models.Order) bool {
			return o.InstallationStatus == models.InstallationCompleted
		},
		GroupBy: aggregate.ByField(func(o *models.Order) string { return o.InstallationStatus }),
	},
	"accounts": {
		Name:       "accounts",
		Roles:      []session.Role{session.Accounts},
		Comparator: filter.ByRecency,
		GroupBy:    aggregate.ByCreator,
	},
	"verification": {
		Name:       "verification",
		Roles:      []session.Role{session.Verification},
		Comparator: filter.ByRecency,
		GroupBy:    aggregate.ByCreator,
	},
	"billing": {
		Name:       "billing",
		Roles:      []session.Role{session.Billing},
		Comparator: filter.ByRecency,
		GroupBy:    aggregate.ByField(func(o *models.Order) string { return o.BillStatus }),
	},
	"dispatch": {
		Name:       "dispatch",
		Roles:      []session.Role{session.Production},
		Comparator: filter.ByRecency,
		BaseFacets: approvedOnly,
		GroupBy:    aggregate.ByField(func(o *models.Order) string { return o.DispatchStatus }),
	},
}

func LookupView(name string) (ViewConfig, bool) {
	v, ok := viewRegistry[name]
	return v, ok
}

func ViewNames() []string {
	names := make([]string, 0, len(viewRegistry))
	for name := range viewRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
