package ingest

import (
	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/errors"
)

// SourceLocation is the object behind a catalog entity.
type SourceLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ResolveSourceLocation maps an entity FQN to the object it was loaded
// from. A four-part FQN (service.bucket.schema.file) names its bucket; two
// or three parts fall back to fallbackBucket. The key is the last segment,
// unquoted. Longer or malformed FQNs and entities of the local upload
// service are ambiguous.
func ResolveSourceLocation(fqn, fallbackBucket string) (SourceLocation, error) {
	parts, err := catalog.SplitFQN(fqn)
	if err != nil || len(parts) < 2 {
		return SourceLocation{}, errors.AmbiguousSource(fqn, "could not parse S3 location from FQN")
	}
	if len(parts) > 4 {
		return SourceLocation{}, errors.AmbiguousSource(fqn, "FQN has more segments than service.bucket.schema.file")
	}
	if parts[0] == catalog.DefaultService {
		return SourceLocation{}, errors.AmbiguousSource(fqn, "this is already a local file")
	}

	bucket := fallbackBucket
	if len(parts) == 4 {
		bucket = parts[1]
	}
	return SourceLocation{Bucket: bucket, Key: parts[len(parts)-1]}, nil
}
