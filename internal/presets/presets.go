package presets

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/golovatskygroup/mcp-infer/internal/proxy"
	"github.com/golovatskygroup/mcp-infer/internal/registry"
)

// Built-in server ids
const (
	GitHub     = "github"
	Jira       = "jira"
	Confluence = "confluence"
	Grafana    = "grafana"
)

// DefaultGitHubURL is the hosted GitHub MCP endpoint
const DefaultGitHubURL = "https://api.githubcopilot.com/mcp/"

// Factories returns the built-in server families in priority order
func Factories() []registry.Factory {
	return []registry.Factory{
		githubFactory(),
		jiraFactory(),
		confluenceFactory(),
		grafanaFactory(),
	}
}

// Select returns the built-in factories with the given ids, in priority order.
// An empty selection returns all of them.
func Select(ids []string) ([]registry.Factory, error) {
	all := Factories()
	if len(ids) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		want[id] = true
	}

	var out []registry.Factory
	for _, f := range all {
		if want[f.ID] {
			out = append(out, f)
			delete(want, f.ID)
		}
	}
	for id := range want {
		return nil, fmt.Errorf("unknown preset: %s", id)
	}
	return out, nil
}

func githubFactory() registry.Factory {
	validate := func(c registry.Credentials) bool {
		if !c.Has("token") {
			return false
		}
		return c.Get("url") == "" || isHTTPURL(c.Get("url"))
	}
	return registry.Factory{
		ID:       GitHub,
		Name:     "GitHub",
		Validate: validate,
		Build: func(c registry.Credentials) (proxy.Config, error) {
			if err := require(GitHub, c, "token"); err != nil {
				return proxy.Config{}, err
			}
			endpoint := c.Get("url")
			if endpoint == "" {
				endpoint = DefaultGitHubURL
			}
			if !isHTTPURL(endpoint) {
				return proxy.Config{}, fmt.Errorf("%s: invalid url %q", GitHub, endpoint)
			}
			return proxy.Config{
				ID:        GitHub,
				Name:      "GitHub",
				Transport: proxy.TransportHTTP,
				URL:       endpoint,
				Headers: map[string]string{
					"Authorization":  "Bearer " + c.Get("token"),
					"X-MCP-Readonly": "true",
				},
				ReadOnly: true,
				Priority: 1,
			}, nil
		},
		AllowedTools: []string{
			"get_me",
			"get_file_contents",
			"search_code",
			"search_repositories",
			"list_issues",
			"get_issue",
			"search_issues",
			"get_issue_comments",
			"list_pull_requests",
			"get_pull_request",
			"get_pull_request_files",
			"get_pull_request_diff",
			"get_pull_request_status",
			"get_pull_request_reviews",
			"get_pull_request_comments",
			"list_commits",
			"get_commit",
			"list_branches",
			"list_tags",
			"list_releases",
			"get_latest_release",
		},
		EnvVars: map[string]string{
			"token": "GITHUB_TOKEN",
			"url":   "GITHUB_MCP_URL",
		},
	}
}

// atlassianFactory covers both Jira and Confluence, served by mcp-atlassian
func atlassianFactory(id, name, envPrefix string, priority int, allowed []string) registry.Factory {
	fields := []string{"url", "username", "token"}
	return registry.Factory{
		ID:   id,
		Name: name,
		Validate: func(c registry.Credentials) bool {
			return c.Has(fields...) && isHTTPURL(c.Get("url"))
		},
		Build: func(c registry.Credentials) (proxy.Config, error) {
			if err := require(id, c, fields...); err != nil {
				return proxy.Config{}, err
			}
			if !isHTTPURL(c.Get("url")) {
				return proxy.Config{}, fmt.Errorf("%s: invalid url %q", id, c.Get("url"))
			}
			return proxy.Config{
				ID:        id,
				Name:      name,
				Transport: proxy.TransportStdio,
				Command:   "uvx",
				Args:      []string{"mcp-atlassian"},
				Env: map[string]string{
					envPrefix + "_URL":       c.Get("url"),
					envPrefix + "_USERNAME":  c.Get("username"),
					envPrefix + "_API_TOKEN": c.Get("token"),
					"READ_ONLY_MODE":         "true",
				},
				ReadOnly: true,
				Priority: priority,
			}, nil
		},
		AllowedTools: allowed,
		EnvVars: map[string]string{
			"url":      envPrefix + "_URL",
			"username": envPrefix + "_USERNAME",
			"token":    envPrefix + "_API_TOKEN",
		},
	}
}

func jiraFactory() registry.Factory {
	return atlassianFactory(Jira, "Jira", "JIRA", 2, []string{
		"jira_get_issue",
		"jira_search",
		"jira_get_project_issues",
		"jira_get_all_projects",
		"jira_get_transitions",
		"jira_get_worklog",
		"jira_get_agile_boards",
		"jira_get_board_issues",
		"jira_get_sprints_from_board",
		"jira_get_sprint_issues",
		"jira_search_fields",
		"jira_get_user_profile",
	})
}

func confluenceFactory() registry.Factory {
	return atlassianFactory(Confluence, "Confluence", "CONFLUENCE", 3, []string{
		"confluence_search",
		"confluence_get_page",
		"confluence_get_page_children",
		"confluence_get_comments",
		"confluence_get_labels",
		"confluence_search_user",
	})
}

func grafanaFactory() registry.Factory {
	return registry.Factory{
		ID:   Grafana,
		Name: "Grafana",
		Validate: func(c registry.Credentials) bool {
			return c.Has("url", "token") && isHTTPURL(c.Get("url"))
		},
		Build: func(c registry.Credentials) (proxy.Config, error) {
			if err := require(Grafana, c, "url", "token"); err != nil {
				return proxy.Config{}, err
			}
			if !isHTTPURL(c.Get("url")) {
				return proxy.Config{}, fmt.Errorf("%s: invalid url %q", Grafana, c.Get("url"))
			}
			return proxy.Config{
				ID:        Grafana,
				Name:      "Grafana",
				Transport: proxy.TransportStdio,
				Command:   "mcp-grafana",
				Args:      []string{"-t", "stdio"},
				Env: map[string]string{
					"GRAFANA_URL":                   c.Get("url"),
					"GRAFANA_SERVICE_ACCOUNT_TOKEN": c.Get("token"),
				},
				ReadOnly: true,
				Priority: 4,
			}, nil
		},
		AllowedTools: []string{
			"search_dashboards",
			"get_dashboard_by_uid",
			"get_dashboard_summary",
			"list_datasources",
			"get_datasource_by_uid",
			"query_prometheus",
			"list_prometheus_metric_names",
			"list_prometheus_label_values",
			"query_loki_logs",
			"list_loki_label_names",
			"list_alert_rules",
			"get_alert_rule_by_uid",
			"list_contact_points",
			"list_incidents",
			"get_incident",
		},
		EnvVars: map[string]string{
			"url":   "GRAFANA_URL",
			"token": "GRAFANA_SERVICE_ACCOUNT_TOKEN",
		},
	}
}

// require returns an error naming the first missing field
func require(id string, c registry.Credentials, fields ...string) error {
	for _, f := range fields {
		if c.Get(f) == "" {
			return fmt.Errorf("%s: missing required credential %q", id, f)
		}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
