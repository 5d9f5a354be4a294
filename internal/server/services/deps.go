// Package services contains the request-driven operations of tooltool:
// issuing upload grants, resolving downloads and querying the catalog.
package services

import (
	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server/metrics"
	"github.com/dmitrijs2005/tooltool/internal/server/regions"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tooltool/internal/server/storage"
	"github.com/dmitrijs2005/tooltool/internal/timex"
)

// Deps are the collaborators shared by the services.
type Deps struct {
	Repos    repomanager.RepositoryManager
	Store    storage.Store
	Regions  *regions.Regions
	Selector regions.Selector
	Now      timex.Clock
	Log      logging.Logger
	Metrics  *metrics.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Selector == nil {
		d.Selector = regions.RandomSelector{}
	}
	if d.Now == nil {
		d.Now = timex.UTCNow
	}
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	return d
}
