package domain

import (
	"strings"
	"testing"

	"estatecore/testutil"
)

func pluginImport(path string) bool {
	return path == "estatecore/plugins" || strings.HasPrefix(path, "estatecore/plugins/")
}

// The domain package is shared by the engine, every backend and the
// plugins, so it must not reach back into any of them.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InternalImportForbidden, pluginImport),
		"pkg/domain must stay free of engine, adapter and plugin imports")
}
