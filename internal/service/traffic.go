package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/LiteObject/github-traffic-monitor/internal/github"
	"github.com/LiteObject/github-traffic-monitor/internal/models"
	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
	"github.com/montanaflynn/stats"
)

// TrafficFetcher is the slice of the GitHub client the aggregator depends
// on; tests substitute a fake.
type TrafficFetcher interface {
	Username() string
	ListOwnedRepositories(ctx context.Context) []github.Repository
	CollectTraffic(ctx context.Context, repo string) *github.TrafficData
}

type TrafficService struct {
	githubClient TrafficFetcher
	db           models.Database

	// pause between repositories to spread load across the rate-limit
	// window; zeroed in tests
	repoDelay time.Duration
	sleep     func(time.Duration)
}

func NewTrafficService(githubClient TrafficFetcher, db models.Database) *TrafficService {
	return &TrafficService{
		githubClient: githubClient,
		db:           db,
		repoDelay:    2 * time.Second,
		sleep:        time.Sleep,
	}
}

// CollectAll enumerates every owned repository and assembles the full
// traffic report, one repository at a time. An empty repository list,
// whether the user owns none or enumeration failed, is a normal terminal
// state that yields an empty report. Individual metric failures never stop
// the run; the affected fields simply stay absent.
func (s *TrafficService) CollectAll(ctx context.Context) models.TrafficReport {
	repos := s.githubClient.ListOwnedRepositories(ctx)

	report := make(models.TrafficReport, len(repos))
	if len(repos) == 0 {
		logger.Warn("no repositories found for %s (or enumeration failed)", s.githubClient.Username())
		return report
	}

	total := len(repos)
	logger.Info("found %d repositories, fetching traffic data", total)

	for i, repo := range repos {
		logger.Info("[%d/%d] collecting traffic for %s", i+1, total, repo.Name)

		data := s.githubClient.CollectTraffic(ctx, repo.Name)
		report[repo.Name] = buildRecord(repo, data)

		logger.Info("progress: %.1f%% complete", float64(i+1)/float64(total)*100)

		if i < total-1 {
			s.sleep(s.repoDelay)
		}
	}

	return report
}

func buildRecord(repo github.Repository, data *github.TrafficData) *models.TrafficRecord {
	record := &models.TrafficRecord{
		RepositoryInfo: models.RepositoryInfo{
			Name:        repo.Name,
			FullName:    repo.FullName,
			Description: repo.Description,
			Stars:       repo.StargazersCount,
			Forks:       repo.ForksCount,
			Language:    repo.Language,
			CreatedAt:   repo.CreatedAt,
			UpdatedAt:   repo.UpdatedAt,
		},
	}

	if data.Views != nil {
		record.Views = &models.ViewsMetric{
			Count:   data.Views.Count,
			Uniques: data.Views.Uniques,
			Daily:   dailyTraffic(data.Views.Views),
		}
	}

	if data.Clones != nil {
		record.Clones = &models.ClonesMetric{
			Count:   data.Clones.Count,
			Uniques: data.Clones.Uniques,
			Daily:   dailyTraffic(data.Clones.Clones),
		}
	}

	if data.Referrers != nil {
		record.Referrers = make([]models.ReferrerMetric, 0, len(data.Referrers))
		for _, ref := range data.Referrers {
			record.Referrers = append(record.Referrers, models.ReferrerMetric{
				Referrer: ref.Referrer,
				Count:    ref.Count,
				Uniques:  ref.Uniques,
			})
		}
	}

	if data.PopularPaths != nil {
		record.PopularPaths = make([]models.PathMetric, 0, len(data.PopularPaths))
		for _, path := range data.PopularPaths {
			record.PopularPaths = append(record.PopularPaths, models.PathMetric{
				Path:    path.Path,
				Title:   path.Title,
				Count:   path.Count,
				Uniques: path.Uniques,
			})
		}
	}

	return record
}

func dailyTraffic(in []github.TrafficStat) []models.DailyTraffic {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.DailyTraffic, 0, len(in))
	for _, stat := range in {
		out = append(out, models.DailyTraffic{
			Timestamp: stat.Timestamp,
			Count:     stat.Count,
			Uniques:   stat.Uniques,
		})
	}
	return out
}

// Summarize folds present view/clone metrics into run totals. Absent
// metrics contribute nothing and are logged as unavailable, so they are
// never mistaken for genuinely idle repositories.
func (s *TrafficService) Summarize(report models.TrafficReport) models.TrafficSummary {
	var summary models.TrafficSummary
	var viewCounts []float64

	for name, record := range report {
		if record.Views != nil {
			summary.TotalViews += record.Views.Count
			summary.TotalUniqueViews += record.Views.Uniques
			summary.ReposWithViews++
			viewCounts = append(viewCounts, float64(record.Views.Count))
		} else {
			logger.Warn("views unavailable for %s, excluded from totals", name)
		}

		if record.Clones != nil {
			summary.TotalClones += record.Clones.Count
			summary.ReposWithClones++
		} else {
			logger.Warn("clones unavailable for %s, excluded from totals", name)
		}
	}

	if len(viewCounts) > 0 {
		if mean, err := stats.Mean(viewCounts); err == nil {
			summary.MeanViews = mean
		}
		if median, err := stats.Median(viewCounts); err == nil {
			summary.MedianViews = median
		}
	}

	return summary
}

// SaveReport persists one collection run and its records atomically.
func (s *TrafficService) SaveReport(ctx context.Context, report models.TrafficReport, summary models.TrafficSummary) (*models.TrafficRun, error) {
	run := &models.TrafficRun{
		Username:    s.githubClient.Username(),
		CollectedAt: time.Now().UTC(),
		RepoCount:   len(report),
		Summary:     summary,
	}

	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.db.InsertRunTx(ctx, tx, run); err != nil {
			return err
		}
		for _, record := range report {
			if err := s.db.InsertRecordTx(ctx, tx, run.ID, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("saved traffic run %d (%d repositories)", run.ID, run.RepoCount)
	return run, nil
}

func (s *TrafficService) LatestReport(ctx context.Context) (*models.TrafficRun, models.TrafficReport, error) {
	run, err := s.db.GetLatestRun(ctx)
	if err != nil {
		return nil, nil, err
	}

	report, err := s.db.GetRunReport(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}

	return run, report, nil
}

func (s *TrafficService) ListRuns(ctx context.Context, limit int) ([]models.TrafficRun, error) {
	return s.db.ListRuns(ctx, limit)
}
