package session

// Scripts exposed to the black-box tests so fakes can tell them apart.
const (
	TenantStatusJS = tenantStatusJS
	TenantSwitchJS = tenantSwitchJS
	SelectOptionJS = selectOptionJS
)
