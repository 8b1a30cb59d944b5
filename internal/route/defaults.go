package route

func entry(source string, format Format, sourcetype, vendor, name string) Entry {
	return Entry{
		Source:     source,
		Format:     format,
		Sourcetype: sourcetype,
		Attrs: map[string]string{
			"dataSource.category": "security",
			"dataSource.vendor":   vendor,
			"dataSource.name":     name,
		},
	}
}

// DefaultTable routes every source used by the built-in scenarios.
func DefaultTable() []Entry {
	umbrella := entry("cisco_umbrella", FormatCSV, "cisco_umbrella-latest", "Cisco", "Cisco Umbrella")
	umbrella.Columns = []string{"timestamp", "identity", "internal_ip", "external_ip", "action", "query_type", "response_code", "domain", "categories"}

	return []Entry{
		entry("aws_cloudtrail", FormatJSON, "aws_cloudtrail-latest", "AWS", "CloudTrail"),
		entry("cisco_duo", FormatJSON, "cisco_duo-latest", "Cisco", "Duo"),
		entry("cisco_ise", FormatJSON, "cisco_ise_logs-latest", "Cisco", "ISE"),
		umbrella,
		entry("crowdstrike_falcon", FormatRaw, "crowdstrike_falcon-latest", "CrowdStrike", "Falcon"),
		entry("f5_networks", FormatJSON, "f5_networks_logs-latest", "F5", "BIG-IP"),
		entry("fortinet_fortigate", FormatRaw, "fortinet_fortigate_candidate_logs-latest", "Fortinet", "FortiGate"),
		entry("github_audit", FormatJSON, "github_audit-latest", "GitHub", "Audit Log"),
		entry("harness_ci", FormatRaw, "harness_ci-latest", "Harness", "CI"),
		entry("hashicorp_vault", FormatJSON, "hashicorp_vault-latest", "HashiCorp", "Vault"),
		entry("imperva_waf", FormatJSON, "imperva_waf_logs-latest", "Imperva", "WAF"),
		entry("microsoft_365_collaboration", FormatJSON, "microsoft_365_collaboration-latest", "Microsoft", "365 Collaboration"),
		entry("microsoft_azuread", FormatJSON, "microsoft_azuread-latest", "Microsoft", "Azure AD"),
		entry("microsoft_windows_eventlog", FormatJSON, "microsoft_windows_eventlog-latest", "Microsoft", "Windows Event Log"),
		entry("mimecast", FormatJSON, "mimecast_mimecast_logs-latest", "Mimecast", "Email Security"),
		entry("netskope", FormatJSON, "netskope_netskope_logs-latest", "Netskope", "Cloud Security"),
		entry("okta_authentication", FormatJSON, "okta_authentication-latest", "Okta", "Authentication"),
		entry("pingone_mfa", FormatJSON, "pingone_mfa-latest", "Ping Identity", "PingOne MFA"),
		entry("pingprotect", FormatJSON, "pingprotect-latest", "Ping Identity", "PingProtect"),
		entry("proofpoint", FormatJSON, "proofpoint_proofpoint_logs-latest", "Proofpoint", "Email Protection"),
		entry("veeam_backup", FormatJSON, "veeam_backup-latest", "Veeam", "Backup"),
		entry("zscaler", FormatJSON, "zscaler_logs-latest", "Zscaler", "Internet Access"),
	}
}
