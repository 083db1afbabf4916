package api

import (
	"net/http"

	"github.com/multimart/marketplace/internal/role"
	"github.com/multimart/marketplace/internal/session"
	"github.com/multimart/marketplace/storefront-service/internal/gate"
)

// NavItem is one entry of the dashboard side navigation.
type NavItem struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// View is the envelope every storefront page is rendered in.
type View struct {
	Layout     gate.Layout `json:"layout"`
	Navigation []NavItem   `json:"navigation,omitempty"`
	Data       any         `json:"data"`
}

// navigationFor builds the dashboard menu from the raw role. Only restricted
// admins see user management.
func navigationFor(rawRole string) []NavItem {
	switch role.ResolveElevated(rawRole) {
	case role.CapabilityRestrictedAdmin:
		return []NavItem{
			{Label: "Overview", Href: "/admin"},
			{Label: "Agent applications", Href: "/admin/agent-applications"},
			{Label: "Customers", Href: "/admin/customers"},
		}
	case role.CapabilityAdmin:
		return []NavItem{
			{Label: "Overview", Href: "/admin"},
			{Label: "Agent applications", Href: "/admin/agent-applications"},
		}
	case role.CapabilityAgent:
		return []NavItem{
			{Label: "Dashboard", Href: "/agent/dashboard"},
		}
	default:
		return nil
	}
}

func render(w http.ResponseWriter, r *http.Request, status int, data any) {
	view := View{Layout: gate.LayoutFromContext(r.Context()), Data: data}
	if view.Layout == gate.LayoutDashboard {
		if p, ok := session.FromContext(r.Context()); ok {
			view.Navigation = navigationFor(p.RawRole)
		}
	}
	writeJSON(w, status, view)
}
