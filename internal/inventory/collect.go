package inventory

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/arcmgr/internal/catalog"
)

// Collect builds the disk and catalog inventories concurrently.
func Collect(
	ctx context.Context,
	cat catalog.Reader,
	scan ScanConfig,
	fetch FetchConfig,
) (disk, cataloged *Inventory, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		disk, err = ScanDisk(gctx, scan)
		return err
	})
	g.Go(func() error {
		var err error
		cataloged, err = FetchCatalog(gctx, cat, fetch)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return disk, cataloged, nil
}
