package planner

import (
	"strings"

	"github.com/ppiankov/prospector/internal/model"
)

// sampleSize bounds every dimension of the plan in sample mode
const sampleSize = 2

// Plan expands keywords and the region/city hierarchy into an ordered task list.
//
// Order is region-major: for each region, the optional region-level tasks
// (one per keyword), then one task per keyword for each city. A region without
// cities always yields region-level tasks. Plan is pure; equal configurations
// yield equal plans.
func Plan(cfg *model.Config) ([]model.SearchTask, error) {
	if len(cfg.Keywords) == 0 {
		return nil, model.ErrNoKeywords
	}
	if len(cfg.Regions) == 0 {
		return nil, model.ErrNoRegions
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, model.ErrBlankKeyword
		}
		keywords = append(keywords, k)
	}
	for _, r := range cfg.Regions {
		if strings.TrimSpace(r.Name) == "" {
			return nil, model.ErrBlankRegion
		}
	}

	regions := cfg.Regions
	if cfg.SampleMode {
		keywords = head(keywords, sampleSize)
		regions = head(regions, sampleSize)
	}

	var tasks []model.SearchTask
	add := func(keyword, region, city string) {
		tasks = append(tasks, model.SearchTask{
			Index:   len(tasks) + 1,
			Keyword: keyword,
			Region:  region,
			City:    city,
		})
	}

	for _, r := range regions {
		region := strings.TrimSpace(r.Name)
		cities := cleanCities(r.Cities)
		if cfg.SampleMode {
			cities = head(cities, sampleSize)
		}

		if cfg.IncludeRegionSearch || len(cities) == 0 {
			for _, k := range keywords {
				add(k, region, "")
			}
		}
		for _, city := range cities {
			for _, k := range keywords {
				add(k, region, city)
			}
		}
	}

	return tasks, nil
}

func cleanCities(cities []string) []string {
	out := make([]string, 0, len(cities))
	for _, c := range cities {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
