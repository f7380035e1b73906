package github

import "time"

type Repository struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	Language        string    `json:"language"`
	ForksCount      int       `json:"forks_count"`
	StargazersCount int       `json:"stargazers_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type TrafficStat struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
	Uniques   int       `json:"uniques"`
}

type TrafficViews struct {
	Count   int           `json:"count"`
	Uniques int           `json:"uniques"`
	Views   []TrafficStat `json:"views"`
}

type TrafficClones struct {
	Count   int           `json:"count"`
	Uniques int           `json:"uniques"`
	Clones  []TrafficStat `json:"clones"`
}

type Referrer struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
	Uniques  int    `json:"uniques"`
}

type PopularPath struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Count   int    `json:"count"`
	Uniques int    `json:"uniques"`
}

// TrafficData bundles the four traffic metrics for one repository. A nil
// field means the endpoint could not be read this run, which is distinct
// from a metric that genuinely reported zero.
type TrafficData struct {
	Views        *TrafficViews
	Clones       *TrafficClones
	Referrers    []Referrer
	PopularPaths []PopularPath
}
