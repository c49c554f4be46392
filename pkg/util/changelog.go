package util

import (
	"github.com/pkg/errors"
	"github.com/r3labs/diff"
)

// ProtectedChangelog diffs before and after, returning the error registered
// for the first protected field found among the changes
func ProtectedChangelog(protected map[string]error, before, after interface{}) (diff.Changelog, error) {
	changelog, err := diff.Diff(before, after)
	if err != nil {
		return nil, errors.Wrap(err, "failed to diff changes")
	}

	// going through changes and checking whether any changed field is protected
	for _, change := range changelog {
		if len(change.Path) == 0 {
			continue
		}

		if err, ok := protected[change.Path[0]]; ok {
			if err == nil {
				err = errors.Errorf("`%s` is protected and cannot be changed", change.Path[0])
			}

			return changelog, err
		}
	}

	return changelog, nil
}

// ChangedFields returns a set of top-level field names touched by the changelog
func ChangedFields(changelog diff.Changelog) map[string]bool {
	fields := make(map[string]bool, len(changelog))
	for _, change := range changelog {
		if len(change.Path) > 0 {
			fields[change.Path[0]] = true
		}
	}

	return fields
}
