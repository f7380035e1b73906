package models

import "time"

// RepositoryInfo is the static snapshot taken from the list endpoint when a
// run starts. It is never mutated after creation.
type RepositoryInfo struct {
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description,omitempty"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Language    string    `json:"language,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DailyTraffic struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
	Uniques   int       `json:"uniques"`
}

type ViewsMetric struct {
	Count   int            `json:"count"`
	Uniques int            `json:"uniques"`
	Daily   []DailyTraffic `json:"views,omitempty"`
}

type ClonesMetric struct {
	Count   int            `json:"count"`
	Uniques int            `json:"uniques"`
	Daily   []DailyTraffic `json:"clones,omitempty"`
}

type ReferrerMetric struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
	Uniques  int    `json:"uniques"`
}

type PathMetric struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Count   int    `json:"count"`
	Uniques int    `json:"uniques"`
}

// TrafficRecord bundles the four traffic metrics for one repository plus
// its static snapshot. A nil metric field means the endpoint could not be
// read during this run; a present metric with zero counts is a different,
// legitimate outcome and the two must never be conflated.
type TrafficRecord struct {
	RepositoryInfo RepositoryInfo   `json:"repository_info"`
	Views          *ViewsMetric     `json:"views"`
	Clones         *ClonesMetric    `json:"clones"`
	Referrers      []ReferrerMetric `json:"referrers"`
	PopularPaths   []PathMetric     `json:"popular_paths"`
}

// TrafficReport maps repository name to its record for one collection run.
// Key order follows enumeration order, which is not stable across runs.
type TrafficReport map[string]*TrafficRecord

type TrafficSummary struct {
	TotalViews       int     `json:"total_views"`
	TotalUniqueViews int     `json:"total_unique_views"`
	TotalClones      int     `json:"total_clones"`
	MeanViews        float64 `json:"mean_views"`
	MedianViews      float64 `json:"median_views"`
	ReposWithViews   int     `json:"repos_with_views"`
	ReposWithClones  int     `json:"repos_with_clones"`
}

// TrafficRun is one persisted collection pass over all repositories.
type TrafficRun struct {
	ID          int            `json:"id"`
	Username    string         `json:"username"`
	CollectedAt time.Time      `json:"collected_at"`
	RepoCount   int            `json:"repo_count"`
	Summary     TrafficSummary `json:"summary"`
}
