// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package params

import (
	"regexp"
	"sync"

	"github.com/canonical/sqlhub/internal/qerr"
)

// patternCache holds compiled pattern constraints. Patterns compile on
// first validation use and the compiled form is shared for the life of
// the process; definitions documents carry a bounded set of patterns.
var patternCache = struct {
	sync.RWMutex
	compiled map[string]*regexp.Regexp
}{compiled: map[string]*regexp.Regexp{}}

func compilePattern(source string) (*regexp.Regexp, error) {
	patternCache.RLock()
	re, ok := patternCache.compiled[source]
	patternCache.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, qerr.Regex(err, source)
	}
	patternCache.Lock()
	patternCache.compiled[source] = re
	patternCache.Unlock()
	return re, nil
}
