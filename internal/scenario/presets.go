package scenario

import "time"

// Builtins returns the scenarios shipped with sortie.
func Builtins() []Template {
	return []Template{
		{
			ID:          "phishing_campaign",
			Name:        "Phishing Campaign",
			Description: "Multi-stage phishing attack with credential harvesting",
			Phases: []Phase{
				{Name: "Initial Email", Sources: []string{"mimecast"}, Duration: 5 * time.Minute},
				{Name: "Credential Harvest", Sources: []string{"okta_authentication"}, Duration: 10 * time.Minute},
				{Name: "Lateral Movement", Sources: []string{"crowdstrike_falcon"}, Duration: 15 * time.Minute},
			},
		},
		{
			ID:          "ransomware_attack",
			Name:        "Ransomware Attack",
			Description: "Ransomware deployment and lateral movement",
			Phases: []Phase{
				{Name: "Initial Compromise", Sources: []string{"crowdstrike_falcon"}, Duration: 10 * time.Minute},
				{Name: "Discovery", Sources: []string{"microsoft_windows_eventlog"}, Duration: 15 * time.Minute},
				{Name: "Lateral Movement", Sources: []string{"microsoft_windows_eventlog"}, Duration: 20 * time.Minute},
				{Name: "Data Encryption", Sources: []string{"veeam_backup"}, Duration: 25 * time.Minute},
				{Name: "Ransom Demand", Sources: []string{"mimecast"}, Duration: 5 * time.Minute},
			},
		},
		{
			ID:          "insider_threat",
			Name:        "Insider Threat",
			Description: "Malicious insider data exfiltration",
			Phases: []Phase{
				{Name: "Data Discovery", Sources: []string{"microsoft_365_collaboration"}, Duration: 30 * time.Minute},
				{Name: "Data Access", Sources: []string{"microsoft_365_collaboration"}, Duration: 20 * time.Minute},
				{Name: "Data Staging", Sources: []string{"aws_cloudtrail"}, Duration: 15 * time.Minute},
				{Name: "Data Exfiltration", Sources: []string{"netskope"}, Duration: 10 * time.Minute},
			},
		},
		{
			ID:          "enterprise_attack_10min",
			Name:        "Enterprise Attack (10 minutes)",
			Description: "Full enterprise kill chain from reconnaissance to detection",
			Phases: []Phase{
				{Name: "Reconnaissance", Sources: []string{"fortinet_fortigate", "cisco_umbrella", "imperva_waf"}, Duration: time.Minute},
				{Name: "Initial Compromise", Sources: []string{"proofpoint", "zscaler", "netskope", "crowdstrike_falcon"}, Duration: time.Minute},
				{Name: "Credential Access", Sources: []string{"okta_authentication", "microsoft_azuread", "cisco_duo", "pingone_mfa", "microsoft_windows_eventlog"}, Duration: 90 * time.Second},
				{Name: "Lateral Movement", Sources: []string{"microsoft_windows_eventlog", "cisco_ise", "f5_networks", "crowdstrike_falcon"}, Duration: 2 * time.Minute},
				{Name: "Privilege Escalation", Sources: []string{"aws_cloudtrail", "hashicorp_vault"}, Duration: time.Minute},
				{Name: "Data Discovery", Sources: []string{"imperva_waf", "aws_cloudtrail", "github_audit"}, Duration: time.Minute},
				{Name: "Data Exfiltration", Sources: []string{"zscaler", "cisco_umbrella", "netskope"}, Duration: time.Minute},
				{Name: "Persistence", Sources: []string{"harness_ci", "aws_cloudtrail", "microsoft_windows_eventlog"}, Duration: time.Minute},
				{Name: "Detection", Sources: []string{"pingprotect", "crowdstrike_falcon"}, Duration: 30 * time.Second},
			},
		},
	}
}
