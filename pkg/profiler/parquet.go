package profiler

import (
	"context"
	"os"

	"github.com/sujanshetty01/OMD/pkg/dataset"
)

func readParquet(ctx context.Context, path, name string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return dataset.ReadParquet(ctx, f, name)
}
