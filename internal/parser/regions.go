package parser

// countryRegions maps ISO 3166-1 alpha-2 country codes to the
// geographic region reported on alerts. The table is intentionally
// coarse; unmapped countries resolve to "Unknown".
var countryRegions = map[string]string{
	"US": "North America",
	"CA": "North America",
	"MX": "North America",

	"BR": "South America",
	"AR": "South America",
	"CL": "South America",
	"CO": "South America",
	"PE": "South America",
	"VE": "South America",
	"EC": "South America",
	"UY": "South America",

	"GB": "Europe",
	"DE": "Europe",
	"FR": "Europe",
	"IT": "Europe",
	"ES": "Europe",
	"PT": "Europe",
	"NL": "Europe",
	"BE": "Europe",
	"CH": "Europe",
	"AT": "Europe",
	"SE": "Europe",
	"NO": "Europe",
	"DK": "Europe",
	"FI": "Europe",
	"PL": "Europe",
	"CZ": "Europe",
	"RO": "Europe",
	"GR": "Europe",
	"IE": "Europe",
	"UA": "Europe",
	"RU": "Europe",

	"CN": "Asia Pacific",
	"JP": "Asia Pacific",
	"KR": "Asia Pacific",
	"IN": "Asia Pacific",
	"SG": "Asia Pacific",
	"HK": "Asia Pacific",
	"TW": "Asia Pacific",
	"TH": "Asia Pacific",
	"VN": "Asia Pacific",
	"ID": "Asia Pacific",
	"MY": "Asia Pacific",
	"PH": "Asia Pacific",

	"AU": "Oceania",
	"NZ": "Oceania",

	"AE": "Middle East",
	"SA": "Middle East",
	"IL": "Middle East",
	"TR": "Middle East",
	"IR": "Middle East",
	"IQ": "Middle East",

	"ZA": "Africa",
	"NG": "Africa",
	"EG": "Africa",
	"KE": "Africa",
	"MA": "Africa",
}

// RegionForCountry resolves a country code to a region. An empty
// country yields an empty region; an unmapped one yields "Unknown".
func RegionForCountry(country string) string {
	if country == "" {
		return ""
	}
	if region, ok := countryRegions[country]; ok {
		return region
	}
	return "Unknown"
}
