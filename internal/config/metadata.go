package config

import "strings"

// Required metadata keys carried by every result record.
const (
	MetaSite    = "Site"
	MetaCompany = "Company"
	MetaService = "Service"
	MetaMenu    = "Menu"
)

// Metadata returns the report metadata for chk: run-wide defaults, overridden
// by metadata_by_url for the check's URL, overridden by the check's own
// metadata. The result always has Site, Company, Service and Menu.
func (c *Config) Metadata(chk Check) map[string]string {
	return ResolveMetadata(c.Defaults, c.MetadataByURL[chk.URL], chk.Metadata)
}

// ResolveMetadata applies the three metadata layers in precedence order.
func ResolveMetadata(defaults Defaults, byURL, perCheck map[string]string) map[string]string {
	meta := map[string]string{
		MetaSite:    defaults.Site,
		MetaCompany: defaults.Company,
		MetaService: "",
		MetaMenu:    "",
	}
	for k, v := range byURL {
		meta[normalizeKey(k)] = v
	}
	for k, v := range perCheck {
		meta[normalizeKey(k)] = v
	}
	return meta
}

// normalizeKey upper-cases the first letter and lower-cases the rest, so
// "service", "SERVICE" and "Service" all land on the same column.
func normalizeKey(k string) string {
	k = strings.TrimSpace(k)
	if k == "" {
		return k
	}
	lower := strings.ToLower(k)
	r := []rune(lower)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
