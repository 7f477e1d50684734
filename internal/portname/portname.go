package portname

import (
	"regexp"
	"strings"
)

type Rule struct {
	Regex   *regexp.Regexp
	Handler func(match []string) string
}

// Rules map long and CDP-abbreviated interface names to the short form used
// by "show interfaces status". Longer prefixes come first.
var Rules = []Rule{
	// "HundredGigE0/0/0/1", "Hu 1/0/49"
	{
		regexp.MustCompile(`(?i)^(?:HundredGig(?:abit)?E(?:thernet)?|Hu)\s*(\d.*)$`),
		func(m []string) string { return "Hu" + m[1] },
	},
	// "FortyGigabitEthernet1/1/1", "Fo 1/1/1"
	{
		regexp.MustCompile(`(?i)^(?:FortyGig(?:abit)?E(?:thernet)?|Fo)\s*(\d.*)$`),
		func(m []string) string { return "Fo" + m[1] },
	},
	// "TwentyFiveGigE1/0/1", "Twe 1/0/1"
	{
		regexp.MustCompile(`(?i)^(?:TwentyFiveGig(?:abit)?E(?:thernet)?|Twe)\s*(\d.*)$`),
		func(m []string) string { return "Twe" + m[1] },
	},
	// "TwoGigabitEthernet1/0/1", "Tw 1/0/1"
	{
		regexp.MustCompile(`(?i)^(?:TwoGigabitEthernet|Tw)\s*(\d.*)$`),
		func(m []string) string { return "Tw" + m[1] },
	},
	// "TenGigabitEthernet1/1/1", "TenGigE0/0/0/0", "Ten 1/1/1"
	{
		regexp.MustCompile(`(?i)^(?:TenGig(?:abit)?E(?:thernet)?|Ten|Te)\s*(\d.*)$`),
		func(m []string) string { return "Te" + m[1] },
	},
	// "GigabitEthernet1/0/48", "GigE0/0/0/1", "Gig 0/1"
	{
		regexp.MustCompile(`(?i)^(?:Gig(?:abit)?E(?:thernet)?|Gig|Gi)\s*(\d.*)$`),
		func(m []string) string { return "Gi" + m[1] },
	},
	// "FastEthernet0/9", "Fas 0/9"
	{
		regexp.MustCompile(`(?i)^(?:FastEthernet|Fas|Fa)\s*(\d.*)$`),
		func(m []string) string { return "Fa" + m[1] },
	},
	// "Port-channel10", "Bundle-Ether1"
	{
		regexp.MustCompile(`(?i)^(?:Port-channel|Po)\s*(\d.*)$`),
		func(m []string) string { return "Po" + m[1] },
	},
	{
		regexp.MustCompile(`(?i)^(?:Bundle-Ether|BE)\s*(\d.*)$`),
		func(m []string) string { return "BE" + m[1] },
	},
	// NX-OS "Ethernet1/1", "Eth 1/1"
	{
		regexp.MustCompile(`(?i)^(?:Ethernet|Eth)\s*(\d.*)$`),
		func(m []string) string { return "Eth" + m[1] },
	},
	// "MgmtEth0/RP0/CPU0/0", "mgmt0"
	{
		regexp.MustCompile(`(?i)^(?:MgmtEth|mgmt)\s*(\d.*)$`),
		func(m []string) string { return "mgmt" + m[1] },
	},
}

// Canonical returns the short, space-free form of an interface name so that
// both ends of a link spell it the same way. Unknown names are returned with
// surrounding whitespace removed.
func Canonical(name string) string {
	name = strings.TrimSpace(name)
	for _, rule := range Rules {
		if match := rule.Regex.FindStringSubmatch(name); len(match) > 1 {
			return rule.Handler(match)
		}
	}
	return name
}
