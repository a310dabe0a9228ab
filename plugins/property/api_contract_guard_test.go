package property

import (
	"testing"

	"estatecore/testutil"
)

// TestAPIBoundaryGuards keeps the module on the engine API; adapters are
// chosen by the host, never by a plugin.
func TestAPIBoundaryGuards(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "plugins must not import infra adapters")
}
