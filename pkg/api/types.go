package api

import (
	"context"

	"github.com/platinummonkey/portstats/pkg/stats"
)

// StatsService answers the read endpoints.
type StatsService interface {
	PortStats(ctx context.Context, name string, w stats.Window, facets []stats.Facet) (stats.Result, error)
	EcosystemStats(ctx context.Context, w stats.Window, facets []stats.Facet) (stats.Result, error)
	GeneralStats(ctx context.Context, w stats.Window, allTime bool) (*stats.GeneralStats, error)
	TopPorts(ctx context.Context, q stats.TopQuery) (*stats.TopPage, error)
}

// Submitter accepts raw reports from the submission endpoint.
type Submitter interface {
	Submit(ctx context.Context, raw []byte) (*stats.IngestResult, error)
}

// SubmissionField is the form field carrying the JSON report.
const SubmissionField = "submission[data]"

// Query defaults for the statistics endpoints.
const (
	defaultDays    = "30"
	defaultDaysAgo = "0"
)

var (
	defaultPortCriteria = []string{
		string(stats.FacetTotalCount),
		string(stats.FacetReqCount),
		string(stats.FacetOSVersions),
		string(stats.FacetXcodeVersions),
		string(stats.FacetInstallsMonthly),
		string(stats.FacetVersionsMonthly),
	}

	defaultSystemCriteria = []string{
		string(stats.FacetOSVersions),
		string(stats.FacetXcodeVersions),
		string(stats.FacetMacPortsVersions),
	}

	// systemAliases accepts the singular criteria names older clients send.
	systemAliases = map[string]string{
		"os_version":       string(stats.FacetOSVersions),
		"xcode_version":    string(stats.FacetXcodeVersions),
		"macports_version": string(stats.FacetMacPortsVersions),
	}
)
