package auth

// MenuItem is one navigation entry of the admin screens.
type MenuItem struct {
	Key   string   `json:"key"`
	Label string   `json:"label"`
	Path  string   `json:"path"`
	roles []string
}

var menu = []MenuItem{
	{Key: "goods", Label: "Goods processing", Path: "/goods", roles: []string{RoleAdmin, RoleManager, RoleOperator}},
	{Key: "receiving", Label: "Receiving", Path: "/receiving", roles: []string{RoleAdmin, RoleManager, RoleOperator}},
	{Key: "shipments", Label: "Shipments", Path: "/shipments", roles: []string{RoleAdmin, RoleManager, RoleOperator}},
	{Key: "counterparties", Label: "Counterparties", Path: "/counterparties", roles: []string{RoleAdmin, RoleManager, RoleOperator, RoleCashier}},
	{Key: "tariffs", Label: "Tariffs", Path: "/tariffs", roles: []string{RoleAdmin, RoleManager}},
	{Key: "discounts", Label: "Discounts", Path: "/discounts", roles: []string{RoleAdmin, RoleManager}},
	{Key: "cash-backs", Label: "Cashback", Path: "/cash-backs", roles: []string{RoleAdmin, RoleManager}},
	{Key: "cash-desk", Label: "Cash desk", Path: "/cash-desk", roles: []string{RoleAdmin, RoleCashier}},
	{Key: "bank", Label: "Bank", Path: "/bank", roles: []string{RoleAdmin, RoleCashier}},
	{Key: "reports", Label: "Reports", Path: "/reports", roles: []string{RoleAdmin, RoleManager}},
	{Key: "branches", Label: "Branches", Path: "/branches", roles: []string{RoleAdmin}},
	{Key: "users", Label: "Users", Path: "/users", roles: []string{RoleAdmin}},
}

// MenuFor returns the entries visible to role, in display order.
func MenuFor(role string) []MenuItem {
	items := make([]MenuItem, 0, len(menu))
	for _, item := range menu {
		for _, r := range item.roles {
			if r == role {
				items = append(items, item)
				break
			}
		}
	}
	return items
}
