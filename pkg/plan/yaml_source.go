package plan

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlPlan is the on-disk representation of a plan.
type yamlPlan struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Price       int64  `yaml:"price"`
	Currency    string `yaml:"currency"`
	Interval    string `yaml:"interval"`
	TrialDays   int    `yaml:"trial_days"`
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a Source that reads plans from a YAML file:
//
//	plans:
//	  - id: premium_monthly
//	    name: premium_monthly
//	    display_name: Premium (monthly)
//	    price: 4900
//	    currency: NGN
//	    interval: monthly
//	    trial_days: 14
//	  - id: premium_yearly
//	    ...
//
// The file is read on every Load call; the catalog loads once at startup,
// so plan changes require a restart.
func NewYAMLSource(path string) Source {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var doc struct {
		Plans []yamlPlan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(doc.Plans) == 0 {
		return nil, errors.Join(ErrFailedToLoadPlans, fmt.Errorf("no plans defined in %s", s.path))
	}

	plans := make(map[string]Plan, len(doc.Plans))
	for _, yp := range doc.Plans {
		plans[yp.ID] = Plan{
			ID:          yp.ID,
			Name:        yp.Name,
			DisplayName: yp.DisplayName,
			Price:       yp.Price,
			Currency:    yp.Currency,
			Interval:    Interval(yp.Interval),
			TrialDays:   yp.TrialDays,
		}
	}
	return plans, nil
}
